// Package listener runs the periodic ingestion loop: fetch report emails,
// store them, run the parsing pipeline over pending reports and optionally
// export review workbooks.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"sheetmap/internal"
	"sheetmap/internal/config"
	"sheetmap/internal/connectors"
	gmailconnector "sheetmap/internal/connectors/gmail"
	imapconnector "sheetmap/internal/connectors/imap"
	"sheetmap/internal/pipeline"
	"sheetmap/internal/storage"
)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	processor *pipeline.ProcessingService
}

func NewService(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService) *Service {
	return &Service{db: db, cfg: cfg, processor: processor}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			slog.Error("listener cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.ListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.ListenerProvider))
	mailConnector, err := s.makeConnector(provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector)
	fetchResult, err := fetchService.FetchAndStore(s.cfg.ListenerLabel, s.cfg.ListenerFetchMax)
	if err != nil {
		return err
	}

	processedReports, processedTables, err := s.processor.ProcessPending(ctx, s.cfg.ListenerProcessBatch, provider)
	if err != nil {
		return err
	}

	if s.cfg.ListenerAutoExport {
		if err := s.exportProcessed(provider); err != nil {
			return err
		}
	}

	slog.Info("listener cycle done",
		"provider", provider,
		"fetched", fetchResult.Fetched,
		"stored", fetchResult.Stored,
		"reports", processedReports,
		"tables", processedTables,
	)
	return nil
}

func (s *Service) exportProcessed(provider string) error {
	reports, err := s.db.ListReportsByStatus("processed", 200)
	if err != nil {
		return err
	}

	for _, report := range reports {
		if report.Provider != provider {
			continue
		}
		runs, err := s.db.ListParseRunsByReport(report.ID)
		if err != nil {
			return err
		}
		for _, run := range runs {
			var result internal.ParseResult
			if err := json.Unmarshal([]byte(run.ResultJSON), &result); err != nil {
				slog.Warn("skipping export of unreadable run", "run", run.ID, "error", err)
				continue
			}
			filename := fmt.Sprintf("%d_%d_%s.xlsx", report.ID, run.ID, sanitizeMessageID(report.MessageID))
			outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
			if err := pipeline.ExportResultToXLSX(result, outputPath); err != nil {
				return err
			}
		}
		if err := s.db.UpdateReportStatus(report.ID, "exported"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) makeConnector(provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
