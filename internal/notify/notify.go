package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/metrics"
)

// ErrTransportNotConfigured is reported as a failed outcome when a channel is
// enabled but the process has no transport for it.
var ErrTransportNotConfigured = errors.New("transport not configured")

type Email struct {
	To       string
	Subject  string
	HTMLBody string
}

type SMS struct {
	To   string
	Body string
}

// EmailSender and SMSSender are the raw transport primitives. Both either
// deliver one message or fail.
type EmailSender interface {
	SendEmail(ctx context.Context, e Email) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, m SMS) error
}

// Message is one alert rendered for a single recipient.
type Message struct {
	ToEmail  string
	ToPhone  string
	Subject  string
	HTMLBody string
	Text     string // SMS body
	TargetID domain.TargetID
	Type     domain.AlertType
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

type Outcome struct {
	Channel domain.Channel
	Status  OutcomeStatus
	Error   string
}

// Dispatcher delivers a message on every enabled channel independently.
type Dispatcher struct {
	Email  EmailSender
	SMS    SMSSender
	Logger *zap.Logger
}

func NewDispatcher(email EmailSender, sms SMSSender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{Email: email, SMS: sms, Logger: logger}
}

// Dispatch tries each channel once and returns one outcome per attempted
// channel. A failing channel never prevents the next one from being tried.
// Channels whose recipient data is missing are skipped without an outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, channels []domain.Channel) []Outcome {
	var out []Outcome
	seen := make(map[domain.Channel]bool, len(channels))
	for _, ch := range channels {
		if seen[ch] {
			continue
		}
		seen[ch] = true

		var err error
		switch ch {
		case domain.ChannelEmail:
			if msg.ToEmail == "" {
				continue
			}
			err = d.try(func() error {
				if d.Email == nil {
					return ErrTransportNotConfigured
				}
				return d.Email.SendEmail(ctx, Email{To: msg.ToEmail, Subject: msg.Subject, HTMLBody: msg.HTMLBody})
			})
		case domain.ChannelSMS:
			if msg.ToPhone == "" {
				continue
			}
			err = d.try(func() error {
				if d.SMS == nil {
					return ErrTransportNotConfigured
				}
				return d.SMS.SendSMS(ctx, SMS{To: msg.ToPhone, Body: msg.Text})
			})
		default:
			d.Logger.Warn("dispatch_unknown_channel", zap.String("channel", string(ch)))
			continue
		}

		o := Outcome{Channel: ch, Status: OutcomeSuccess}
		if err != nil {
			o.Status = OutcomeFailed
			o.Error = err.Error()
			d.Logger.Warn("channel_failed",
				zap.String("channel", string(ch)),
				zap.String("target_id", string(msg.TargetID)),
				zap.String("alert_type", string(msg.Type)),
				zap.Error(err),
			)
		} else {
			d.Logger.Debug("channel_delivered",
				zap.String("channel", string(ch)),
				zap.String("target_id", string(msg.TargetID)),
				zap.String("alert_type", string(msg.Type)),
			)
		}
		metrics.ChannelDeliveries.WithLabelValues(string(ch), string(o.Status)).Inc()
		out = append(out, o)
	}
	return out
}

// try turns a transport panic into an ordinary failure.
func (d *Dispatcher) try(send func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return send()
}
