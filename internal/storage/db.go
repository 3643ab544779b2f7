package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"sheetmap/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS reports (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS parse_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  reportId INTEGER,
  fileName TEXT NOT NULL,
  headerRowIndex INTEGER NOT NULL,
  dataStartRow INTEGER NOT NULL,
  columnCount INTEGER NOT NULL,
  totalCells INTEGER NOT NULL,
  successfulParses INTEGER NOT NULL,
  semanticCalls INTEGER NOT NULL,
  resultJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(reportId) REFERENCES reports(id)
);
CREATE INDEX IF NOT EXISTS idx_parse_runs_report ON parse_runs(reportId);

CREATE TABLE IF NOT EXISTS header_mappings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  position INTEGER NOT NULL,
  originalHeader TEXT NOT NULL,
  matchedParameter TEXT,
  matchedAsset TEXT,
  method TEXT NOT NULL,
  confidence TEXT NOT NULL,
  normalizedHeader TEXT,
  UNIQUE(runId, position),
  FOREIGN KEY(runId) REFERENCES parse_runs(id)
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertReport(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.ReportRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO reports (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.ReportRow{}, err
	}

	row, err := d.GetReportByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.ReportRow{}, err
	}
	if row == nil {
		return internal.ReportRow{}, errors.New("failed to upsert report")
	}
	return *row, nil
}

func (d *DB) GetReportByProviderMessageID(provider, messageID string) (*internal.ReportRow, error) {
	var row internal.ReportRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM reports WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListReportsByStatus(status string, limit int) ([]internal.ReportRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM reports WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ReportRow
	for rows.Next() {
		var row internal.ReportRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateReportStatus(reportID int, status string) error {
	_, err := d.conn.Exec(`UPDATE reports SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, reportID)
	return err
}

// InsertParseRun stores one complete parse result: the run summary row plus
// one header_mappings row per column.
func (d *DB) InsertParseRun(traceID string, reportID *int, result internal.ParseResult) (int64, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return 0, err
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
INSERT INTO parse_runs (traceId, reportId, fileName, headerRowIndex, dataStartRow, columnCount, totalCells, successfulParses, semanticCalls, resultJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, traceID, reportID, result.FileName,
		result.TableStructure.HeaderRowIndex, result.TableStructure.DataStartRow, result.TableStructure.ColumnCount,
		result.TotalCells, result.SuccessfulParses, result.SemanticCalls, string(resultJSON))
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO header_mappings (runId, position, originalHeader, matchedParameter, matchedAsset, method, confidence, normalizedHeader)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for pos, m := range result.HeaderMappings {
		if _, err := stmt.Exec(runID, pos, m.OriginalHeader, m.MatchedParameter, m.MatchedAsset, string(m.Method), string(m.Confidence), m.NormalizedHeader); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

func (d *DB) GetParseRun(runID int) (*internal.ParseRunRow, error) {
	var row internal.ParseRunRow
	err := d.conn.QueryRow(`
SELECT id, traceId, reportId, fileName, headerRowIndex, dataStartRow, columnCount, totalCells, successfulParses, semanticCalls, resultJson, createdAt
FROM parse_runs WHERE id = ?
`, runID).Scan(
		&row.ID, &row.TraceID, &row.ReportID, &row.FileName, &row.HeaderRowIndex, &row.DataStartRow, &row.ColumnCount,
		&row.TotalCells, &row.SuccessfulParses, &row.SemanticCalls, &row.ResultJSON, &row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListParseRunsByReport(reportID int) ([]internal.ParseRunRow, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, reportId, fileName, headerRowIndex, dataStartRow, columnCount, totalCells, successfulParses, semanticCalls, resultJson, createdAt
FROM parse_runs WHERE reportId = ? ORDER BY id ASC
`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ParseRunRow
	for rows.Next() {
		var row internal.ParseRunRow
		if err := rows.Scan(
			&row.ID, &row.TraceID, &row.ReportID, &row.FileName, &row.HeaderRowIndex, &row.DataStartRow, &row.ColumnCount,
			&row.TotalCells, &row.SuccessfulParses, &row.SemanticCalls, &row.ResultJSON, &row.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
