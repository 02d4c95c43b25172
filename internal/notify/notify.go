package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	mailgun "github.com/mailgun/mailgun-go/v3"

	"github.com/jluzny/hag/internal/config"
	"github.com/jluzny/hag/internal/logger"
)

const sendTimeout = 10 * time.Second

// Sender delivers a single alert message. Satisfied by the mailgun
// client and by test fakes.
type Sender interface {
	Send(subject, body string) error
}

// Nop discards alerts. Used when alerting is disabled.
type Nop struct{}

func (Nop) UnitCommandFailed(string, error) {}

// FailureNotifier counts consecutive command failures per unit and
// sends one alert when a unit crosses the threshold. A successful
// command for the unit is not observable here, so the counter resets
// after each alert instead.
type FailureNotifier struct {
	sender    Sender
	threshold int
	log       *logger.Logger

	mu     sync.Mutex
	counts map[string]int
}

func NewFailureNotifier(sender Sender, threshold int, log *logger.Logger) *FailureNotifier {
	if threshold < 1 {
		threshold = 1
	}
	return &FailureNotifier{
		sender:    sender,
		threshold: threshold,
		log:       log,
		counts:    make(map[string]int),
	}
}

// UnitCommandFailed records a failure and alerts on the Nth in a row.
func (n *FailureNotifier) UnitCommandFailed(entityID string, err error) {
	n.mu.Lock()
	n.counts[entityID]++
	count := n.counts[entityID]
	if count >= n.threshold {
		n.counts[entityID] = 0
	}
	n.mu.Unlock()

	if count < n.threshold {
		return
	}
	subject := fmt.Sprintf("hvac unit %s is failing", entityID)
	body := fmt.Sprintf("%d consecutive commands to %s failed, last error: %v", count, entityID, err)
	if sendErr := n.sender.Send(subject, body); sendErr != nil {
		n.log.Errorw("failed to send alert", "entity", entityID, "err", sendErr)
	}
}

// MailgunSender sends alerts by e-mail.
type MailgunSender struct {
	mg         mailgun.Mailgun
	sender     string
	recipients []string
}

func NewMailgunSender(cfg config.Alerts) *MailgunSender {
	return &MailgunSender{
		mg:         mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey),
		sender:     cfg.Sender,
		recipients: cfg.Recipients,
	}
}

func (s *MailgunSender) Send(subject, body string) error {
	msg := s.mg.NewMessage(s.sender, subject, body, s.recipients...)
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	_, _, err := s.mg.Send(ctx, msg)
	return err
}
