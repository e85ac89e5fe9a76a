// Package sheets exports committed dispense movements to a Google
// spreadsheet so pharmacy staff can audit stock release without database
// access. The export is best-effort: a failed append never fails a commit.
package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/clinicore/dispensary/internal/config"
	"github.com/clinicore/dispensary/internal/domain/models"
)

const (
	dispenseLogRange = "Dispenses!A:F"
	dateLayout       = "2006-01-02 15:04:05"
)

// AuditSink records dispense movements in an external audit log.
type AuditSink interface {
	AppendDispense(ctx context.Context, rec models.DispenseRecord) error
}

// GoogleSheetAuditSink implements AuditSink using the official Google Sheets
// API.
type GoogleSheetAuditSink struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetAuditSink builds a Google Sheets backed audit sink.
func NewGoogleSheetAuditSink(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetAuditSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetAuditSink{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// AppendDispense writes one row per committed dispense record.
func (s *GoogleSheetAuditSink) AppendDispense(ctx context.Context, rec models.DispenseRecord) error {
	lines := make([]string, 0, len(rec.Lines))
	for _, line := range rec.Lines {
		lines = append(lines, fmt.Sprintf("%s:%d", line.BatchID, line.Quantity))
	}

	values := []interface{}{
		rec.DispensedAt.Format(dateLayout),
		rec.ID,
		rec.OrderID,
		rec.TotalQuantity,
		rec.DispensedBy,
		fmt.Sprintf("%v", lines),
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := s.service.Spreadsheets.Values.Append(s.spreadsheetID, dispenseLogRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append dispense row: %w", err)
	}

	s.logger.Debug("dispense row appended to audit sheet", zap.String("record_id", rec.ID))
	return nil
}

// NopAuditSink discards every record. Used when no spreadsheet is
// configured.
type NopAuditSink struct{}

// AppendDispense does nothing.
func (NopAuditSink) AppendDispense(context.Context, models.DispenseRecord) error { return nil }
