package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"orienta/internal/service"
)

// ReportHandler serves the wide response reports of a version
type ReportHandler struct {
	Base
	reports *service.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(base Base, reports *service.ReportService) *ReportHandler {
	return &ReportHandler{Base: base, reports: reports}
}

func wideFilter(r *http.Request) service.WideFilter {
	q := r.URL.Query()
	return service.WideFilter{UserCode: q.Get("user_code"), Status: q.Get("status")}
}

// Wide returns one page of responses pivoted to one column per question
// @Summary Wide response table
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Rows per page" default(50)
// @Param user_code query string false "Student code substring"
// @Param status query string false "Response status" Enums(in_progress, submitted, finalized)
// @Success 200 {object} Envelope{data=service.WideTable}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /admin/versions/{id}/responses/wide [get]
func (h *ReportHandler) Wide(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	table, err := h.reports.WideTable(r.Context(), versionID, wideFilter(r), page, pageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, table)
}

// Export streams every filtered response as CSV
// @Summary Export responses as CSV
// @Tags Reports
// @Produce text/csv
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Param user_code query string false "Student code substring"
// @Param status query string false "Response status" Enums(in_progress, submitted, finalized)
// @Success 200 {file} file
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /admin/versions/{id}/responses/export [get]
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sw := &lazyCSVWriter{w: w, filename: fmt.Sprintf("responses_v%d_%s.csv", versionID, time.Now().UTC().Format("20060102"))}
	if err := h.reports.ExportCSV(r.Context(), versionID, wideFilter(r), sw); err != nil {
		if sw.started {
			// Headers are gone, the client sees a truncated file
			slog.Error("CSV export aborted", "version_id", versionID, "error", err)
			return
		}
		h.fail(w, r, err)
	}
}

// lazyCSVWriter sends the download headers with the first byte so that
// errors before any output still produce a JSON error response
type lazyCSVWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (l *lazyCSVWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.started = true
		l.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		l.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", l.filename))
		l.w.WriteHeader(http.StatusOK)
	}
	return l.w.Write(p)
}
