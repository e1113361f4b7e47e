package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go-sales-insights/internal/model"
	"go-sales-insights/internal/pipeline"
	"go-sales-insights/internal/session"
	"go-sales-insights/pkg/router"
	"go-sales-insights/pkg/utils"
)

// PrepareRequest commits a column mapping, e.g. {"mapping":{"date":"OrderDate","quantity":"Qty"}}
type PrepareRequest struct {
	Mapping model.Mapping `json:"mapping"`
}

// FilterRequest is a filter selection. A category role left out of
// Categories uses the default choice; an empty list selects nothing.
type FilterRequest struct {
	From       string              `json:"from,omitempty" example:"2024-01-01"`
	To         string              `json:"to,omitempty" example:"2024-12-31"`
	Categories map[string][]string `json:"categories,omitempty"`
	Search     *model.TextSearch   `json:"search,omitempty"`
}

// ViewResponse is the current filtered view of a session
type ViewResponse struct {
	SessionID    string            `json:"session_id"`
	FilteredRows int               `json:"filtered_rows"`
	Selection    model.Selection   `json:"selection"`
	Summary      *model.Summary    `json:"summary"`
	Downloads    map[string]string `json:"downloads"`
}

// --- Sessions ---

// CreateSession starts an empty working session
// @Summary Create a session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 201 {object} session.Info
// @Failure 401 {object} ErrorResponse
// @Router /sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Create(currentUser(r))
	writeJSON(w, http.StatusCreated, s.Info())
}

// ListSessions lists the caller's sessions
// @Summary List sessions
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} session.Info
// @Router /sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sessions.List(currentUser(r)))
}

// GetSession describes one session
// @Summary Get a session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} session.Info
// @Failure 404 {object} ErrorResponse "Session not found"
// @Router /sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

// DeleteSession discards a session and its data
// @Summary Delete a session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse "Session not found"
// @Router /sessions/{id} [delete]
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := router.Param(r, 0)
	if err := h.Sessions.Delete(id, currentUser(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session deleted",
		"session_id": id,
	})
}

// --- Pipeline ---

// Upload loads a CSV or Excel file into the session
// @Summary Upload a dataset
// @Description Multipart upload in field "file"; an optional "preset" names a configured column mapping
// @Tags pipeline
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param file formData file true "CSV or Excel file"
// @Param preset formData string false "Mapping preset"
// @Success 200 {object} session.Info
// @Failure 400 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse "Unsupported file type"
// @Router /sessions/{id}/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, fmt.Errorf("%w: limit is %d bytes", errTooLarge, limit))
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: form field \"file\" is required", errBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: failed to read upload: %v", errBadRequest, err))
		return
	}

	info, err := s.Load(header.Filename, data, strings.TrimSpace(r.FormValue("preset")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Prepare commits a mapping and builds the canonical table
// @Summary Commit a column mapping
// @Tags pipeline
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param mapping body PrepareRequest true "Role to column mapping"
// @Success 200 {object} session.Info
// @Failure 400 {object} ErrorResponse "Invalid mapping"
// @Failure 409 {object} ErrorResponse "No file uploaded"
// @Router /sessions/{id}/prepare [post]
func (h *Handler) Prepare(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON payload", errBadRequest))
		return
	}

	info, err := s.Prepare(req.Mapping)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Filter applies a selection and returns the recomputed view
// @Summary Apply filters
// @Tags pipeline
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param selection body FilterRequest true "Filter selection"
// @Success 200 {object} ViewResponse
// @Failure 400 {object} ErrorResponse "Invalid selection"
// @Failure 409 {object} ErrorResponse "Dataset not prepared"
// @Router /sessions/{id}/filter [post]
func (h *Handler) Filter(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON payload", errBadRequest))
		return
	}
	sel, err := req.Selection()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := s.Apply(sel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(s, res))
}

// Summary returns the current view without changing the selection
// @Summary Current summary
// @Tags pipeline
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} ViewResponse
// @Failure 409 {object} ErrorResponse "Dataset not prepared"
// @Router /sessions/{id}/summary [get]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := s.Result()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(s, res))
}

// Counts returns row counts per value of any column of the filtered view
// @Summary Value counts
// @Tags pipeline
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param column query string true "Column name"
// @Param n query int false "Maximum number of values" default(5)
// @Success 200 {array} model.ValueCount
// @Failure 400 {object} ErrorResponse
// @Router /sessions/{id}/counts [get]
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := s.Result()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	column := r.URL.Query().Get("column")
	if !res.Filtered.Has(column) {
		h.writeError(w, r, fmt.Errorf("%w: unknown column %q", errBadRequest, column))
		return
	}
	n := 5
	if v := r.URL.Query().Get("n"); v != "" {
		if n, err = strconv.Atoi(v); err != nil || n < 0 {
			h.writeError(w, r, fmt.Errorf("%w: n must be a non-negative integer", errBadRequest))
			return
		}
	}
	writeJSON(w, http.StatusOK, pipeline.ValueCounts(res.Filtered, column, n))
}

// PutChart stores a rendered chart for the archive download
// @Summary Store a chart image
// @Tags pipeline
// @Accept image/png
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param name path string true "Chart name" Enums(trend_monthly, bar_region, bar_product, pie_region, pie_product)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse "Unknown chart name"
// @Router /sessions/{id}/charts/{name} [put]
func (h *Handler) PutChart(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	name := router.Param(r, 1)

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	img, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", errTooLarge, err))
		return
	}
	if len(img) == 0 {
		h.writeError(w, r, fmt.Errorf("%w: empty image", errBadRequest))
		return
	}

	if err := s.SetChart(name, img); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chart": name,
		"bytes": len(img),
	})
}

// Export downloads one artifact of the current view
// @Summary Download an export
// @Tags pipeline
// @Produce application/octet-stream
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param artifact path string true "Artifact" Enums(filtered.csv, kpi_summary.csv, charts.zip, report.xlsx)
// @Success 200 {file} file "File download"
// @Failure 404 {object} ErrorResponse "Unknown artifact"
// @Failure 409 {object} ErrorResponse "Dataset not prepared"
// @Router /sessions/{id}/export/{artifact} [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	fileName, err := s.Export(router.Param(r, 1), &buf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	w.Header().Set("Content-Type", utils.ContentType(fileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) view(s *session.Session, res *pipeline.Result) ViewResponse {
	downloads := map[string]string{}
	for _, a := range []string{session.ArtifactFilteredCSV, session.ArtifactKPISummary, session.ArtifactCharts, session.ArtifactWorkbook} {
		downloads[a] = h.Outputs.GetDownloadURL(s.ID, a)
	}
	return ViewResponse{
		SessionID:    s.ID,
		FilteredRows: res.Filtered.Len(),
		Selection:    res.Selection,
		Summary:      res.Summary,
		Downloads:    downloads,
	}
}

// Selection converts the request into a filter selection
func (req FilterRequest) Selection() (model.Selection, error) {
	var sel model.Selection

	if req.From != "" || req.To != "" {
		rng := &model.DateRange{}
		if req.From != "" {
			d, ok := utils.CoerceDate(req.From)
			if !ok {
				return sel, fmt.Errorf("%w: cannot parse from date %q", pipeline.ErrInvalidSelection, req.From)
			}
			rng.From = d
		}
		if req.To != "" {
			d, ok := utils.CoerceDate(req.To)
			if !ok {
				return sel, fmt.Errorf("%w: cannot parse to date %q", pipeline.ErrInvalidSelection, req.To)
			}
			rng.To = d
		}
		sel.Dates = rng
	}

	if req.Categories != nil {
		sel.Categories = make(map[model.Role][]string, len(req.Categories))
		for name, values := range req.Categories {
			role, err := model.ParseRole(name)
			if err != nil {
				return sel, fmt.Errorf("%w: %v", pipeline.ErrInvalidSelection, err)
			}
			if values == nil {
				values = []string{}
			}
			sel.Categories[role] = values
		}
	}

	if req.Search != nil {
		q := *req.Search
		sel.Search = &q
	}
	return sel, nil
}
