// Package tasks defines the background jobs and the worker that runs them.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindOTPEmail        Kind = "otp_email"
	KindOTPSMS          Kind = "otp_sms"
	KindEmail           Kind = "email"
	KindEpisodeDuration Kind = "episode_duration"
	KindCourseHours     Kind = "course_hours"
	KindPaymentCheck    Kind = "payment_check"
)

var ErrUnknownKind = errors.New("unknown job kind")

// Priority is the queue priority of a job kind, 0..9.
func (k Kind) Priority() uint8 {
	switch k {
	case KindOTPEmail, KindOTPSMS:
		return 9
	case KindEmail, KindPaymentCheck:
		return 5
	default:
		return 1
	}
}

type Job struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func NewJob(kind Kind, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Job{Kind: kind, Payload: raw}, nil
}

func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Kind, err)
	}
	return nil
}

// Enqueuer hands jobs to the queue. Enqueue failures never undo the caller's work.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error
}

type OTPEmail struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type OTPSMS struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type EpisodeDuration struct {
	EpisodeID int64 `json:"episode_id"`
}

type CourseHours struct {
	CourseID int64 `json:"course_id"`
}

type PaymentCheck struct {
	OrderID int64 `json:"order_id"`
}
