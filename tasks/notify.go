package tasks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	otpSubject = "Prago verification code"
	otpBody    = "Your Prago login code: %s\nThe code is valid for a few minutes. Ignore this message if you did not request it."
	otpSMSBody = "Prago login code: %s"
)

// Notifier delivers messages to users.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, phone, body string) error
}

// LogNotifier records deliveries in the log instead of contacting a provider.
// Message bodies are not logged since they may carry codes.
type LogNotifier struct{}

func (LogNotifier) SendEmail(_ context.Context, to, subject, body string) error {
	log.Info().Str("to", to).Str("subject", subject).Int("body_len", len(body)).Msg("email sent")
	return nil
}

func (LogNotifier) SendSMS(_ context.Context, phone, body string) error {
	log.Info().Str("phone", phone).Int("body_len", len(body)).Msg("sms sent")
	return nil
}

func otpEmailBody(code string) string { return fmt.Sprintf(otpBody, code) }

func otpSMSText(code string) string { return fmt.Sprintf(otpSMSBody, code) }
