package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
)

// Prober reads the playback duration of a media URL in seconds.
type Prober interface {
	Duration(ctx context.Context, url string) (int, error)
}

// FFProbe shells out to the ffprobe binary.
type FFProbe struct {
	Path string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p FFProbe) Duration(ctx context.Context, url string) (int, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin, "-v", "quiet", "-print_format", "json", "-show_format", url)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", url, err)
	}
	return parseFFProbe(out)
}

func parseFFProbe(out []byte) (int, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("ffprobe output: %w", err)
	}
	if res.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe output: no duration")
	}
	seconds, err := strconv.ParseFloat(res.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", res.Format.Duration, err)
	}
	return int(math.Floor(seconds)), nil
}
