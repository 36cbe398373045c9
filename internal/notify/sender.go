package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Email is the rendered form of an Event.
type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// ── Resend ────────────────────────────────────────────────────────────────────

// ResendSender posts emails to the Resend HTTP API.
type ResendSender struct {
	httpClient *resty.Client
}

// NewResendSender builds a resty-backed Resend client.
func NewResendSender(baseURL, apiKey string) *ResendSender {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", apiKey)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	return &ResendSender{httpClient: client}
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (s *ResendSender) Send(ctx context.Context, msg Email) error {
	result := new(resendResponse)
	apiErr := new(resendError)

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(result).
		SetError(apiErr).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("resend api error: status=%d, name=%s, message=%s",
			resp.StatusCode(), apiErr.Name, apiErr.Message)
	}
	return nil
}

// ── Log only ──────────────────────────────────────────────────────────────────

// LogSender writes emails to the log instead of sending them.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Email) error {
	s.log.Info("email",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}
