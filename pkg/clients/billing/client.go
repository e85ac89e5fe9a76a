// Package billing is a thin client for the external billing service. The
// engine only observes invoice status; it never creates or mutates
// invoices.
package billing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/clinicore/dispensary/internal/config"
	"github.com/clinicore/dispensary/internal/domain/models"
)

// Client exposes the billing operations used by the engine.
type Client interface {
	GetInvoiceStatus(ctx context.Context, invoiceID string) (models.InvoiceStatus, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a billing API client using the provided configuration
// values.
func NewClient(cfg config.BillingConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	if cfg.APIToken != "" {
		restyClient.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIToken))
	}

	return &APIClient{httpClient: restyClient}
}

// invoiceResponse mirrors the billing service's invoice payload.
type invoiceResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// apiError represents a billing service error payload.
type apiError struct {
	Error string `json:"error"`
}

// GetInvoiceStatus fetches the current status of one invoice.
func (c *APIClient) GetInvoiceStatus(ctx context.Context, invoiceID string) (models.InvoiceStatus, error) {
	result := new(invoiceResponse)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr).
		Get(fmt.Sprintf("/invoices/%s", invoiceID))
	if err != nil {
		return "", fmt.Errorf("fetch invoice status: %w", err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return "", models.ErrNotFound
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return "", fmt.Errorf("billing api error: code=%d, message=%s", resp.StatusCode(), apiErr.Error)
	}

	status := models.InvoiceStatus(strings.ToUpper(result.Status))
	switch status {
	case models.InvoiceIssued, models.InvoicePartial, models.InvoicePaid, models.InvoiceVoid, models.InvoiceRefunded:
		return status, nil
	default:
		return "", fmt.Errorf("billing api returned unknown status %q", result.Status)
	}
}
