package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"sheetmap/internal/grid"
	"sheetmap/internal/logging"
	"sheetmap/internal/pipeline"
)

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":        "sheetmap",
		"description": "Upload spreadsheet reports to /api/parse for header mapping and cell parsing",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleParse accepts a multipart workbook upload and returns the full
// ParseResult. 400 covers bad uploads, 422 structural failures; data-quality
// problems never fail the request.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes)
	if err := r.ParseMultipartForm(s.cfg.UploadMaxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	name := header.Filename
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".xlsx") && !strings.HasSuffix(lower, ".xls") {
		writeError(w, http.StatusBadRequest, "only spreadsheet files (.xlsx, .xls) are supported")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(content) == 0 {
		writeError(w, http.StatusBadRequest, "empty file uploaded")
		return
	}

	g, err := grid.FromXLSX(content)
	if err != nil {
		logger.Warn("unreadable workbook", "file", name, "error", err)
		writeError(w, http.StatusBadRequest, "invalid or corrupted spreadsheet file")
		return
	}

	result, err := s.service.ParseGrid(r.Context(), name, g)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidGrid) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		logger.Error("parse failed", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "error processing file")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
