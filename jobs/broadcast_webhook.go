package jobs

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/AmirIqbalKhan/dashboard/internal/jobs"
	"github.com/AmirIqbalKhan/dashboard/internal/notifications"
	"github.com/AmirIqbalKhan/dashboard/internal/settings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body keyed by the api key.
const SignatureHeader = "X-Dashboard-Signature"

// SettingsSource provides the current unmasked settings.
type SettingsSource interface {
	Current(ctx context.Context) (settings.Settings, error)
}

// BroadcastWebhookJob posts committed broadcasts to the configured webhook.
type BroadcastWebhookJob struct {
	Settings SettingsSource
	Client   *http.Client
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewBroadcastWebhookJob wires dependencies for the webhook handler.
func NewBroadcastWebhookJob(source SettingsSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *BroadcastWebhookJob {
	return &BroadcastWebhookJob{
		Settings: source,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Logger:   logger,
		Metrics:  metrics,
	}
}

type webhookBody struct {
	Event string                       `json:"event"`
	Data  notifications.BroadcastEvent `json:"data"`
}

// Handle processes TaskNotificationBroadcast tasks.
func (j *BroadcastWebhookJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Settings == nil {
		return errors.New("broadcast webhook: handler not configured")
	}
	var event notifications.BroadcastEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode broadcast event: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskNotificationBroadcast)
	defer func() { err = tracker.End(err) }()

	cfg, err := j.Settings.Current(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	logger := j.logger().With(slog.Int64("audit_id", event.AuditID))
	if cfg.WebhookURL == "" {
		logger.Debug("no webhook configured, skipping broadcast delivery")
		j.Metrics.AddWebhookDelivery(jobmetrics.DeliverySkipped)
		return nil
	}

	body, err := json.Marshal(webhookBody{Event: TaskNotificationBroadcast, Data: event})
	if err != nil {
		return fmt.Errorf("encode webhook body: %v: %w", err, asynq.SkipRetry)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %v: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dashboard-Event", TaskNotificationBroadcast)
	req.Header.Set("X-Dashboard-Delivery", strconv.FormatInt(event.AuditID, 10))
	if cfg.APIKey != "" {
		req.Header.Set(SignatureHeader, Sign(cfg.APIKey, body))
	}

	resp, err := j.Client.Do(req)
	if err != nil {
		j.Metrics.AddWebhookDelivery(jobmetrics.DeliveryError)
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		j.Metrics.AddWebhookDelivery(jobmetrics.DeliveryDelivered)
		logger.Info("broadcast webhook delivered", slog.Int("status", resp.StatusCode))
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		j.Metrics.AddWebhookDelivery(jobmetrics.DeliveryRejected)
		return fmt.Errorf("webhook rejected delivery with status %d: %w", resp.StatusCode, asynq.SkipRetry)
	default:
		j.Metrics.AddWebhookDelivery(jobmetrics.DeliveryError)
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
}

func (j *BroadcastWebhookJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// Sign returns the hex HMAC-SHA256 of body keyed by key.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func broadcastTaskID(auditID int64) string {
	return "broadcast-" + strconv.FormatInt(auditID, 10)
}
