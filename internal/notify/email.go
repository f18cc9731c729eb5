package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/overplus/booking-service/internal/logging"
)

// EmailChannel sends via the SendGrid API.
type EmailChannel struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

func NewEmailChannel(cfg EmailConfig, logger *logging.Logger) *EmailChannel {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Overplus Bookings"
	}
	return &EmailChannel{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, msg Message) (SendOutcome, error) {
	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail("", msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)

	response, err := c.client.SendWithContext(ctx, message)
	if err != nil {
		return SendOutcome{Retryable: true}, fmt.Errorf("sendgrid send: %w", err)
	}

	outcome := SendOutcome{}
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		outcome.ProviderID = ids[0]
	}

	if response.StatusCode >= 400 {
		// Rate limits and provider-side faults are worth retrying; other
		// 4xx responses will fail the same way every time.
		outcome.Retryable = response.StatusCode >= 500 || response.StatusCode == 429
		return outcome, fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}

	c.logger.Info("email accepted", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return outcome, nil
}
