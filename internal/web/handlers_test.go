package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xuri/excelize/v2"

	"sheetmap/internal"
	"sheetmap/internal/config"
	"sheetmap/internal/pipeline"
	"sheetmap/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, _ := config.Load()
	svc := pipeline.NewProcessingService(cfg, registry.New(), nil, nil)
	return NewServer(cfg, svc)
}

func mkWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	_ = writer.Close()
	return body, writer.FormDataContentType()
}

func TestHandleParse(t *testing.T) {
	srv := newTestServer(t)
	blob := mkWorkbook(t, [][]any{
		{"Date", "Power_Output", "Efficiency", "Status"},
		{"2024-01-01", 450.5, "85%", "running"},
	})
	body, contentType := multipartUpload(t, "report.xlsx", blob)

	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var result internal.ParseResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.FileName != "report.xlsx" {
		t.Fatalf("file=%q", result.FileName)
	}
	if result.TableStructure.HeaderRowIndex != 1 || result.TableStructure.DataStartRow != 2 {
		t.Fatalf("structure=%+v", result.TableStructure)
	}
	if len(result.HeaderMappings) != 4 {
		t.Fatalf("mappings=%d", len(result.HeaderMappings))
	}
	if result.HeaderMappings[1].Method != internal.MethodExact {
		t.Fatalf("mapping=%+v", result.HeaderMappings[1])
	}
	if result.TotalCells != 4 {
		t.Fatalf("cells=%d", result.TotalCells)
	}
}

func TestHandleParseRejectsNonSpreadsheet(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, "report.csv", []byte("a,b,c"))

	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestHandleParseRejectsCorruptWorkbook(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, "report.xlsx", []byte("not a workbook"))

	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestHandleParseMissingFile(t *testing.T) {
	srv := newTestServer(t)
	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("note", "no file here")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "healthy" {
		t.Fatalf("payload=%v", payload)
	}
}
