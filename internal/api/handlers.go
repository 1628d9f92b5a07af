package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notionclean/internal/apperr"
	"github.com/starford/notionclean/internal/cleanservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *cleanservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *cleanservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Validate checks a normalize request.
func (r NormalizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Paths, validation.Required, validation.Length(1, maxNormalizePaths)),
	)
}

// Normalize handles POST /api/normalize.
//
//	@Summary		Clean a batch of exported paths
//	@Tags			paths
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NormalizeRequest	true	"Paths to clean"
//	@Success		200		{object}	NormalizeResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/normalize [post]
func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, NormalizeResponse{Paths: h.svc.Normalize(r.Context(), req.Paths)})
}

// Rewrite handles POST /api/rewrite.
//
//	@Summary		Retarget every reference in a Markdown text
//	@Tags			paths
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RewriteRequest	true	"Markdown text"
//	@Success		200		{object}	RewriteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rewrite [post]
func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	writeJSON(w, http.StatusOK, RewriteResponse{Text: h.svc.Rewrite(r.Context(), req.Text)})
}

// CreateRun handles POST /api/runs.
//
//	@Summary		Run the cleaner over the whole export
//	@Tags			runs
//	@Produce		json
//	@Success		200		{object}	RunSummary
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs [post]
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	// A run outlives a client that disconnects.
	sum, err := h.svc.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, apperr.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, errorBody("a run is already in progress"))
		} else {
			slog.Error("run failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// LatestRun handles GET /api/runs/latest.
//
//	@Summary		Report of the most recent run
//	@Tags			runs
//	@Produce		json
//	@Success		200		{object}	RunReport
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/latest [get]
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	h.writeReport(w, r, "")
}

// GetRun handles GET /api/runs/{id}.
//
//	@Summary		Report of a single run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run id"
//	@Success		200	{object}	RunReport
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	h.writeReport(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, id string) {
	rep, err := h.svc.RunReport(r.Context(), id)
	if err != nil {
		writeServiceError(w, "run report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// LatestDangling handles GET /api/runs/latest/dangling.
//
//	@Summary		Dangling links of the most recent run
//	@Tags			runs
//	@Produce		json
//	@Success		200		{object}	DanglingResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/latest/dangling [get]
func (h *Handler) LatestDangling(w http.ResponseWriter, r *http.Request) {
	run, links, err := h.svc.Dangling(r.Context(), "")
	if err != nil {
		writeServiceError(w, "dangling links", err)
		return
	}
	writeJSON(w, http.StatusOK, DanglingResponse{RunID: run.ID, Dangling: links})
}
