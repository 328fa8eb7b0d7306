package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/puzzlehunt/huntserver/internal/config"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

// Discord rejects longer message content.
const maxAlertLength = 2000

type webhookPayload struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

// WebhookAlerter posts to Discord compatible webhooks, one URL per channel.
type WebhookAlerter struct {
	client   *http.Client
	urls     map[Channel]string
	username string
}

var _ Alerter = (*WebhookAlerter)(nil)

func NewWebhookAlerter(cfg *config.AlertsConfig) *WebhookAlerter {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	return newWebhookAlerter(cfg, retryClient.StandardClient())
}

func newWebhookAlerter(cfg *config.AlertsConfig, client *http.Client) *WebhookAlerter {
	urls := map[Channel]string{
		ChannelGeneral:     cfg.General,
		ChannelSubmissions: cfg.Submissions,
		ChannelFreeAnswers: cfg.FreeAnswers,
		ChannelVictory:     cfg.Victory,
		ChannelHints:       cfg.Hints,
	}
	return &WebhookAlerter{client: client, urls: urls, username: cfg.Username}
}

func (a *WebhookAlerter) url(channel Channel) string {
	if u := a.urls[channel]; u != "" {
		return u
	}
	return a.urls[ChannelGeneral]
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func (a *WebhookAlerter) Alert(ctx context.Context, channel Channel, message string) error {
	ctx, span := tracer.Start(ctx, "WebhookAlerter.Alert")
	defer span.End()

	span.SetAttributes(attribute.String("alert.channel", string(channel)))

	url := a.url(channel)
	if url == "" {
		logger.Logger.InfoContext(ctx, "alert", "channel", channel, "message", message)
		span.AddEvent("no_webhook_configured")
		span.SetStatus(codes.Ok, "logged alert")
		return nil
	}

	content := fmt.Sprintf("[%s] %s", time.Now().Format(time.TimeOnly), message)
	body, err := json.Marshal(webhookPayload{Username: a.username, Content: truncate(content, maxAlertLength)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal webhook payload")
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build webhook request")
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post webhook")
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("webhook responded with status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook rejected alert")
		return err
	}

	span.SetStatus(codes.Ok, "posted alert")
	return nil
}
