package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"sheetmap/internal"
	"sheetmap/internal/config"
	"sheetmap/internal/grid"
	"sheetmap/internal/llm"
	"sheetmap/internal/metrics"
	"sheetmap/internal/registry"
	"sheetmap/internal/storage"
)

// ProcessingService runs the full pipeline for one grid: structure detection,
// three-tier header matching and deterministic cell parsing, then persists
// the run when a database is configured. Registry and gateway are shared
// read-only, so one service instance serves concurrent requests.
type ProcessingService struct {
	cfg      config.Config
	registry *registry.Registry
	gateway  *llm.Client
	matcher  *Matcher
	db       *storage.DB
}

// NewProcessingService wires the pipeline. db may be nil, in which case runs
// are not persisted. gateway may be nil, in which case the semantic tier and
// the detector fallback are skipped.
func NewProcessingService(cfg config.Config, reg *registry.Registry, gateway *llm.Client, db *storage.DB) *ProcessingService {
	var batch BatchMatcher
	if gateway != nil {
		batch = gateway
	}
	return &ProcessingService{
		cfg:      cfg,
		registry: reg,
		gateway:  gateway,
		matcher:  NewMatcher(reg, batch),
		db:       db,
	}
}

// ParseGrid maps the header row and parses every data cell of one grid.
// Only structural preconditions fail; data-quality problems degrade to
// none/low mappings and verbatim text values, never to an error.
func (s *ProcessingService) ParseGrid(ctx context.Context, fileName string, g grid.Grid) (internal.ParseResult, error) {
	return s.parseGrid(ctx, fileName, g, nil)
}

func (s *ProcessingService) parseGrid(ctx context.Context, fileName string, g grid.Grid, reportID *int) (internal.ParseResult, error) {
	start := time.Now()

	var fallback SimpleQuerier
	if s.gateway != nil {
		fallback = s.gateway
	}
	structure, err := DetectStructure(ctx, g, fallback)
	if err != nil {
		metrics.ParseRequests.WithLabelValues("invalid").Inc()
		return internal.ParseResult{}, err
	}

	headers := extractHeaders(g.Row(structure.HeaderRowIndex), structure.ColumnCount)
	mappings, semanticCalls := s.matcher.MatchHeaders(ctx, headers)

	parsed := make([][]internal.ParsedCell, 0)
	totalCells := 0
	successful := 0
	for rowIdx := structure.DataStartRow; rowIdx <= g.RowCount(); rowIdx++ {
		cells := ParseRow(g.Row(rowIdx), mappings, rowIdx)
		for _, cell := range cells {
			totalCells++
			if cell.ParseSuccess {
				successful++
				metrics.CellsParsed.WithLabelValues("ok").Inc()
			} else {
				metrics.CellsParsed.WithLabelValues("failed").Inc()
			}
		}
		parsed = append(parsed, cells)
	}

	result := internal.ParseResult{
		FileName:         fileName,
		TableStructure:   structure,
		HeaderMappings:   mappings,
		ParsedData:       parsed,
		TotalCells:       totalCells,
		SuccessfulParses: successful,
		SemanticCalls:    semanticCalls,
	}

	if s.db != nil {
		if _, err := s.db.InsertParseRun(uuid.NewString(), reportID, result); err != nil {
			slog.Warn("failed to persist parse run", "file", fileName, "error", err)
		}
	}

	metrics.ParseRequests.WithLabelValues("ok").Inc()
	metrics.ParseDuration.Observe(time.Since(start).Seconds())
	slog.Info("parse complete",
		"file", fileName,
		"header_row", structure.HeaderRowIndex,
		"columns", structure.ColumnCount,
		"cells", totalCells,
		"successful", successful,
		"semantic_calls", semanticCalls,
	)
	return result, nil
}

// extractHeaders renders the header row as strings, one per column,
// substituting Column_<i> for blank or missing header cells.
func extractHeaders(row []any, columnCount int) []string {
	headers := make([]string, 0, columnCount)
	for i := 0; i < columnCount; i++ {
		text := ""
		if i < len(row) && row[i] != nil {
			text = strings.TrimSpace(fmt.Sprintf("%v", row[i]))
		}
		if text == "" {
			text = fmt.Sprintf("Column_%d", i)
		}
		headers = append(headers, text)
	}
	return headers
}

// ProcessReport parses every table found in a stored report email:
// spreadsheet attachments first, then HTML tables in the body. Reports with
// no usable table are marked skipped.
func (s *ProcessingService) ProcessReport(ctx context.Context, report internal.ReportRow) (int, error) {
	raw, err := os.ReadFile(report.RawRef)
	if err != nil {
		return 0, err
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		_ = s.markReport(report.ID, "failed")
		return 0, fmt.Errorf("read report envelope: %w", err)
	}

	reportID := report.ID
	parsedTables := 0

	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".xlsx") && !strings.HasSuffix(lower, ".xls") {
			continue
		}
		g, err := grid.FromXLSX(att.Content)
		if err != nil {
			slog.Warn("skipping unreadable attachment", "report", report.ID, "attachment", name, "error", err)
			continue
		}
		if _, err := s.parseGrid(ctx, name, g, &reportID); err != nil {
			slog.Warn("attachment failed structural checks", "report", report.ID, "attachment", name, "error", err)
			continue
		}
		parsedTables++
	}

	if parsedTables == 0 && env.HTML != "" {
		if g, err := grid.FromHTMLTable(env.HTML); err == nil {
			name := fmt.Sprintf("report-%d-body.html", report.ID)
			if _, err := s.parseGrid(ctx, name, g, &reportID); err == nil {
				parsedTables++
			}
		}
	}

	status := "processed"
	if parsedTables == 0 {
		status = "skipped"
	}
	if err := s.markReport(report.ID, status); err != nil {
		return parsedTables, err
	}
	return parsedTables, nil
}

// ProcessByProviderMessageID processes a single stored report.
func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("processing stored reports requires storage")
	}
	report, err := s.db.GetReportByProviderMessageID(provider, messageID)
	if err != nil {
		return 0, err
	}
	if report == nil {
		return 0, fmt.Errorf("report not found: provider=%s messageId=%s", provider, messageID)
	}
	return s.ProcessReport(ctx, *report)
}

// ProcessPending processes up to limit fetched reports.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	if s.db == nil {
		return 0, 0, fmt.Errorf("processing pending reports requires storage")
	}

	pending, err := s.db.ListReportsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}

	processedReports := 0
	processedTables := 0
	for _, report := range pending {
		if provider != "" && report.Provider != provider {
			continue
		}
		tables, err := s.ProcessReport(ctx, report)
		if err != nil {
			return processedReports, processedTables, err
		}
		processedReports++
		processedTables += tables
	}
	return processedReports, processedTables, nil
}

func (s *ProcessingService) markReport(reportID int, status string) error {
	if s.db == nil {
		return nil
	}
	return s.db.UpdateReportStatus(reportID, status)
}
