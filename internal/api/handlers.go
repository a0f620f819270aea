package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mtvsearch/internal/apperr"
	"github.com/starford/mtvsearch/internal/checksum"
	"github.com/starford/mtvsearch/internal/filter"
	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/session"
	"github.com/starford/mtvsearch/internal/sse"
	"github.com/starford/mtvsearch/internal/status"
)

// Handler holds API route handlers.
type Handler struct {
	sessions *session.Service
	status   *status.Monitor
	broker   *sse.Broker
}

// NewHandler creates a new Handler. broker may be nil.
func NewHandler(sessions *session.Service, monitor *status.Monitor, broker *sse.Broker) *Handler {
	return &Handler{sessions: sessions, status: monitor, broker: broker}
}

// writeError maps service errors to HTTP responses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("session not found"))
	case errors.Is(err, apperr.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrUnavailable):
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Open a search session
//	@Tags			sessions
//	@Produce		json
//	@Success		201	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.Create(r.Context())
	if err != nil {
		writeError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: id})
}

// DeleteSession handles DELETE /api/sessions/{id}.
//
//	@Summary		Close a search session
//	@Tags			sessions
//	@Param			id	path	string	true	"Session ID"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		writeError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetView handles GET /api/sessions/{id}/view.
//
//	@Summary		Current view model of a session
//	@Tags			sessions
//	@Produce		json
//	@Param			id				path		string	true	"Session ID"
//	@Param			If-None-Match	header		string	false	"ETag of a previously fetched view"
//	@Success		200				{object}	View
//	@Success		304
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/view [get]
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get view", err)
		return
	}
	etag, err := checksum.ETag(v)
	if err != nil {
		writeError(w, "get view", err)
		return
	}
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetFilter handles PUT /api/sessions/{id}/filters/{field}.
//
//	@Summary		Update one filter field
//	@Tags			sessions
//	@Accept			json
//	@Param			id		path	string				true	"Session ID"
//	@Param			field	path	string				true	"Field"	Enums(title, channel, start, duration, topic)
//	@Param			body	body	FilterRequest		true	"Filter value"
//	@Success		202
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/filters/{field} [put]
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if !readJSON(w, r, &req) {
		return
	}
	err := h.sessions.SetFilter(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "field"), req.Value, req.Modifier)
	if err != nil {
		writeError(w, "set filter", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SetSort handles PUT /api/sessions/{id}/sort.
//
//	@Summary		Change the sort order
//	@Tags			sessions
//	@Accept			json
//	@Param			id		path	string		true	"Session ID"
//	@Param			body	body	SortRequest	true	"Sort order"
//	@Success		202
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/sort [put]
func (h *Handler) SetSort(w http.ResponseWriter, r *http.Request) {
	var req SortRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.sessions.SetSort(r.Context(), chi.URLParam(r, "id"), req.Field, req.Direction); err != nil {
		writeError(w, "set sort", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SetPage handles PUT /api/sessions/{id}/page.
//
//	@Summary		Navigate to a result page
//	@Tags			sessions
//	@Accept			json
//	@Param			id		path	string		true	"Session ID"
//	@Param			body	body	PageRequest	true	"Page number"
//	@Success		202
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/page [put]
func (h *Handler) SetPage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.sessions.SetPage(r.Context(), chi.URLParam(r, "id"), req.Page); err != nil {
		writeError(w, "set page", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RefreshSession handles POST /api/sessions/{id}/refresh.
//
//	@Summary		Re-run the current query
//	@Tags			sessions
//	@Param			id	path	string	true	"Session ID"
//	@Success		202
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/refresh [post]
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Refresh(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "refresh session", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SessionEvents handles GET /api/sessions/{id}/events.
//
//	@Summary		Stream view and status updates of a session
//	@Tags			sessions
//	@Produce		text/event-stream
//	@Param			id	path	string	true	"Session ID"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/events [get]
func (h *Handler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	release, err := h.sessions.Watch(r.Context(), id)
	if err != nil {
		writeError(w, "session events", err)
		return
	}
	defer release()
	h.broker.ServeTopic(w, r, id)
}

// Search handles GET /api/search.
//
//	@Summary		One-shot catalog search
//	@Tags			search
//	@Produce		json
//	@Param			title			query		string	false	"Title contains"
//	@Param			channel			query		string	false	"Channel"
//	@Param			topic			query		string	false	"Topic contains"
//	@Param			start			query		string	false	"Date or age"
//	@Param			start_mode		query		string	false	"Date modifier"	Enums(before, after, age)
//	@Param			duration		query		string	false	"Minutes"
//	@Param			duration_mode	query		string	false	"Duration modifier"	Enums(shorter, longer)
//	@Param			page			query		int		false	"Page"
//	@Param			sort			query		string	false	"Sort field"
//	@Param			direction		query		string	false	"Sort direction"	Enums(ascending, descending)
//	@Success		200				{object}	View
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := session.SearchParams{SortField: q.Get("sort")}

	for _, field := range filter.Fields() {
		text := q.Get(field)
		if text == "" {
			continue
		}
		m, err := filter.ParseModifier(q.Get(field + "_mode"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		p.Filters = append(p.Filters, filter.Value{Field: field, Text: text, Modifier: m})
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody("page must be a positive integer"))
			return
		}
		p.Page = page
	}
	if raw := q.Get("direction"); raw != "" {
		dir, err := models.ParseSortDirection(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		p.SortDirection = dir
	}

	v, err := h.sessions.Search(r.Context(), p)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetStatus handles GET /api/status.
//
//	@Summary		Database status of the query service
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: h.status.Current()})
}

// RefreshStatus handles POST /api/status/refresh.
//
//	@Summary		Ask the query service to refresh its database
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/status/refresh [post]
func (h *Handler) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	text, err := h.status.RequestRefresh(r.Context())
	if err != nil {
		slog.Warn("database refresh failed", slog.String("error", err.Error()))
		writeError(w, "refresh database", apperr.ErrUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: text})
}
