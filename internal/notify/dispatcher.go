package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/overplus/booking-service/internal/logging"
	"github.com/overplus/booking-service/internal/metrics"
)

// Job describes one booking-confirmed notification to a provider: where to
// reach them per channel, what each channel should say, and in which order
// to try the channels.
type Job struct {
	SlotID        uuid.UUID `json:"slot_id"`
	ProviderName  string    `json:"provider_name"`
	EmailAddress  string    `json:"email_address"`
	MessagingAddr string    `json:"messaging_address"`
	Subject       string    `json:"subject"`
	EmailBody     string    `json:"email_body"`
	EmailHTML     string    `json:"email_html,omitempty"`
	Text          string    `json:"text"`
	Preference    []string  `json:"preference,omitempty"`
}

// Attempt records a single delivery try for auditing and manual resend.
type Attempt struct {
	Channel    string    `json:"channel"`
	Index      int       `json:"attempt"`
	At         time.Time `json:"at"`
	Accepted   bool      `json:"accepted"`
	ProviderID string    `json:"provider_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type ChannelResult struct {
	Channel   string    `json:"channel"`
	Delivered bool      `json:"delivered"`
	Attempts  []Attempt `json:"attempts"`
	Error     string    `json:"error,omitempty"`
}

type DispatchResult struct {
	Delivered      bool            `json:"delivered"`
	ChannelResults []ChannelResult `json:"channel_results"`
}

// AttemptRecorder persists delivery attempts. Recording failures never fail
// a dispatch; they are logged and dropped.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, slotID uuid.UUID, attempt Attempt) error
}

// Dispatcher delivers a job across channels with a bounded per-channel
// retry budget. It is a best-effort broadcast, not a quorum: the job counts
// as delivered once any attempt on any channel is accepted, but every
// channel still gets its own tries. Retry counters live on the stack of a
// single Dispatch call; the dispatcher itself holds no per-job state.
type Dispatcher struct {
	channels   []Channel
	recorder   AttemptRecorder
	maxRetries int
	retryDelay time.Duration
	logger     *logging.Logger
}

func NewDispatcher(channels []Channel, recorder AttemptRecorder, maxRetries int, retryDelay time.Duration, logger *logging.Logger) *Dispatcher {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	configured := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			configured = append(configured, ch)
		}
	}
	return &Dispatcher{
		channels:   configured,
		recorder:   recorder,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job Job) DispatchResult {
	var result DispatchResult

	for _, name := range d.channelOrder(job) {
		ch := d.channel(name)
		if ch == nil {
			result.ChannelResults = append(result.ChannelResults, ChannelResult{
				Channel: name,
				Error:   "channel not configured",
			})
			continue
		}

		msg, ok := messageFor(name, job)
		if !ok {
			result.ChannelResults = append(result.ChannelResults, ChannelResult{
				Channel: name,
				Error:   "no recipient address for channel",
			})
			continue
		}

		cr := d.runChannel(ctx, job.SlotID, ch, msg)
		if cr.Delivered {
			result.Delivered = true
		}
		result.ChannelResults = append(result.ChannelResults, cr)
	}

	state := "exhausted"
	if result.Delivered {
		state = "delivered"
	}
	metrics.DispatchJobs.WithLabelValues(state).Inc()

	d.logger.Info("dispatch finished",
		"slot_id", job.SlotID,
		"delivered", result.Delivered,
		"channels", len(result.ChannelResults),
	)

	return result
}

// runChannel burns one channel's attempt budget: up to maxRetries tries
// with a fixed delay between them, stopping early on acceptance or a
// non-retryable provider rejection.
func (d *Dispatcher) runChannel(ctx context.Context, slotID uuid.UUID, ch Channel, msg Message) ChannelResult {
	cr := ChannelResult{Channel: ch.Name()}

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		outcome, err := ch.Send(ctx, msg)

		a := Attempt{
			Channel:    ch.Name(),
			Index:      attempt,
			At:         time.Now(),
			Accepted:   err == nil,
			ProviderID: outcome.ProviderID,
		}
		if err != nil {
			a.Error = err.Error()
		}
		cr.Attempts = append(cr.Attempts, a)
		d.record(ctx, slotID, a)

		if err == nil {
			metrics.DispatchAttempts.WithLabelValues(ch.Name(), "sent").Inc()
			cr.Delivered = true
			return cr
		}

		metrics.DispatchAttempts.WithLabelValues(ch.Name(), "failed").Inc()
		d.logger.Warn("channel attempt failed",
			"slot_id", slotID,
			"channel", ch.Name(),
			"attempt", attempt,
			"error", err,
		)

		if !outcome.Retryable {
			break
		}
		if attempt < d.maxRetries {
			if !d.wait(ctx) {
				break
			}
		}
	}

	return cr
}

func (d *Dispatcher) channelOrder(job Job) []string {
	if len(job.Preference) > 0 {
		return job.Preference
	}
	return []string{ChannelEmail, ChannelMessaging}
}

func (d *Dispatcher) channel(name string) Channel {
	for _, ch := range d.channels {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, slotID uuid.UUID, a Attempt) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordAttempt(ctx, slotID, a); err != nil {
		d.logger.Warn("failed to record notification attempt", "slot_id", slotID, "channel", a.Channel, "error", err)
	}
}

// wait sleeps the inter-attempt delay, honoring cancellation. Returns false
// when the context ended first.
func (d *Dispatcher) wait(ctx context.Context) bool {
	if d.retryDelay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d.retryDelay):
		return true
	}
}

func messageFor(channel string, job Job) (Message, bool) {
	switch channel {
	case ChannelEmail:
		if job.EmailAddress == "" {
			return Message{}, false
		}
		return Message{
			To:      job.EmailAddress,
			Subject: job.Subject,
			Body:    job.EmailBody,
			HTML:    job.EmailHTML,
		}, true
	case ChannelMessaging:
		if job.MessagingAddr == "" {
			return Message{}, false
		}
		return Message{
			To:   job.MessagingAddr,
			Body: job.Text,
		}, true
	default:
		return Message{}, false
	}
}
