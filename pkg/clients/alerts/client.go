// Package alerts posts low-stock notifications to a configured webhook so
// purchasing staff can act on reorder thresholds.
package alerts

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/clinicore/dispensary/internal/config"
	"github.com/clinicore/dispensary/internal/domain/models"
)

// Notifier delivers low-stock alerts.
type Notifier interface {
	NotifyLowStock(ctx context.Context, medication models.Medication, level models.StockLevel) error
}

// WebhookNotifier POSTs alerts as JSON to a single webhook URL.
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
}

// NewWebhookNotifier builds a webhook-backed notifier.
func NewWebhookNotifier(cfg config.AlertsConfig) *WebhookNotifier {
	restyClient := resty.New()
	restyClient.
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &WebhookNotifier{httpClient: restyClient, url: cfg.WebhookURL}
}

// NotifyLowStock sends one alert payload.
func (n *WebhookNotifier) NotifyLowStock(ctx context.Context, medication models.Medication, level models.StockLevel) error {
	payload := map[string]any{
		"type":              "low_stock",
		"medication_id":     medication.ID,
		"medication_name":   medication.Name,
		"total_on_hand":     level.TotalOnHand,
		"reorder_threshold": level.ReorderThreshold,
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("send low stock alert: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("alert webhook error: code=%d", resp.StatusCode())
	}

	return nil
}

// NopNotifier discards every alert. Used when no webhook is configured.
type NopNotifier struct{}

// NotifyLowStock does nothing.
func (NopNotifier) NotifyLowStock(context.Context, models.Medication, models.StockLevel) error {
	return nil
}
