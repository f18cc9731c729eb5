package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/overplus/booking-service/internal/logging"
)

// MessagingChannel posts messages through Twilio's REST API.
type MessagingChannel struct {
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	logger     *logging.Logger
}

type MessagingConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

func NewMessagingChannel(cfg MessagingConfig, logger *logging.Logger) *MessagingChannel {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MessagingChannel{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *MessagingChannel) Name() string { return ChannelMessaging }

func (c *MessagingChannel) Send(ctx context.Context, msg Message) (SendOutcome, error) {
	if msg.To == "" {
		return SendOutcome{}, errors.New("messaging: to required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return SendOutcome{}, errors.New("messaging: body required")
	}

	payload := url.Values{}
	payload.Set("To", msg.To)
	payload.Set("From", c.from)
	payload.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", c.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return SendOutcome{}, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendOutcome{Retryable: true}, fmt.Errorf("messaging send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome := SendOutcome{}
		var parsed struct {
			SID string `json:"sid"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil {
			outcome.ProviderID = parsed.SID
		}
		c.logger.Info("message accepted", "to", msg.To, "sid", outcome.ProviderID)
		return outcome, nil
	}

	// Don't retry non-rate-limit 4xx errors.
	retryable := resp.StatusCode < 400 || resp.StatusCode >= 500 || resp.StatusCode == 429
	return SendOutcome{Retryable: retryable}, fmt.Errorf("messaging send failed: %s", formatProviderError(resp.StatusCode, body))
}

type providerAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatProviderError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed providerAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
