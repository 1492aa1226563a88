package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/maillist/internal/broadcast"
	"github.com/foxzi/maillist/internal/errs"
	"github.com/foxzi/maillist/internal/models"
)

// CreateListRequest is the request body for POST /lists
type CreateListRequest struct {
	Title            string                  `json:"title"`
	CustomProperties []models.CustomProperty `json:"customProperties"`
}

// CreateListResponse is the response for POST /lists
type CreateListResponse struct {
	Message string `json:"message"`
	ListID  string `json:"listId"`
}

// BroadcastRequest is the request body for POST /lists/{id}/email
type BroadcastRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// BroadcastResponse is the response for POST /lists/{id}/email
type BroadcastResponse struct {
	Message   string                      `json:"message"`
	SentCount int                         `json:"sentCount"`
	Failures  []broadcast.DispatchFailure `json:"failures,omitempty"`
}

// MessageResponse is a plain confirmation response
type MessageResponse struct {
	Message string `json:"message"`
}

// ListsResponse is the response for GET /lists
type ListsResponse struct {
	Lists []models.List `json:"lists"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateList handles POST /lists
func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	list, err := s.lists.Create(r.Context(), req.Title, req.CustomProperties)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.logger.Info("list created", "list_id", list.ID, "title", list.Title)

	s.sendJSON(w, http.StatusCreated, CreateListResponse{
		Message: "List created successfully",
		ListID:  list.ID,
	})
}

// handleListLists handles GET /lists
func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.lists.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, ListsResponse{Lists: lists})
}

// handleImportUsers handles POST /lists/{id}/users. The upload is staged
// to a temporary file which is removed on every exit path, validation
// and not-found failures included.
func (s *Server) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "CSV file is required")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp(s.cfg.Server.UploadDir, "maillist-upload-*")
	if err != nil {
		s.logger.Error("failed to stage upload", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, file); err != nil {
		s.logger.Error("failed to stage upload", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		s.sendError(w, http.StatusBadRequest, "only CSV files are allowed")
		return
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		s.logger.Error("failed to rewind upload", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	report, err := s.ingestor.Ingest(r.Context(), listID, tmp)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if s.cfg.Metrics.Enabled {
		s.metrics.ObserveIngest(report.SuccessCount, report.FailureCount)
	}

	s.sendJSON(w, http.StatusOK, report)
}

// handleBroadcast handles POST /lists/{id}/email
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.broadcaster.Broadcast(r.Context(), listID, req.Subject, req.Body)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if s.cfg.Metrics.Enabled {
		s.metrics.ObserveBroadcast(result.Sent, len(result.Failures))
	}

	s.sendJSON(w, http.StatusOK, BroadcastResponse{
		Message:   "Emails sent successfully to the subscribed users",
		SentCount: result.Sent,
		Failures:  result.Failures,
	})
}

// handleUnsubscribe handles GET /lists/unsubscribe/{token}
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	sub, err := s.subscribers.Unsubscribe(r.Context(), token)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.logger.Info("subscriber unsubscribed", "list_id", sub.ListID, "subscriber_id", sub.ID)

	s.sendJSON(w, http.StatusOK, MessageResponse{Message: "Unsubscribed successfully"})
}

// respondError maps the error taxonomy to HTTP statuses. Unexpected
// errors are logged and surfaced opaquely.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errs.IsConflict(err):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errs.IsNotFound(err):
		s.sendError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
