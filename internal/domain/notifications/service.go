package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"leaveflow/internal/platform/metrics"
)

const JobEmail = "notification_email"

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Queue runs delivery off the caller's goroutine.
type Queue interface {
	Enqueue(jobType, key string, run func(context.Context) error) (string, error)
}

var ErrNoAddress = errors.New("no email address for recipient")

// Service hands leave notifications to the mailer through the job queue.
// Send returns once the message is queued. Delivery failures are logged and
// counted by the worker; the caller counts errors returned from Send.
type Service struct {
	Mailer      Mailer
	DefaultFrom string
	Domain      string
	queue       Queue
}

func New(queue Queue, mailer Mailer, from, domain string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{Mailer: mailer, DefaultFrom: from, Domain: domain, queue: queue}
}

func (s *Service) Send(ctx context.Context, recipient, subject, body string) error {
	to, err := s.Address(recipient)
	if err != nil {
		return err
	}
	jobID, err := s.queue.Enqueue(JobEmail, recipient, func(ctx context.Context) error {
		if err := s.Mailer.Send(ctx, s.DefaultFrom, to, subject, body); err != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			slog.Warn("notification email send failed", "recipient", recipient, "subject", subject, "err", err)
			return err
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}
	slog.Debug("notification queued", "jobId", jobID, "recipient", recipient, "subject", subject)
	return nil
}

// Address resolves a recipient id. Ids that already look like addresses are
// used as-is, anything else is mapped to id@Domain.
func (s *Service) Address(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", ErrNoAddress
	}
	if strings.Contains(recipient, "@") {
		return recipient, nil
	}
	if s.Domain == "" {
		return "", fmt.Errorf("%w: %s", ErrNoAddress, recipient)
	}
	return recipient + "@" + strings.TrimPrefix(s.Domain, "@"), nil
}
