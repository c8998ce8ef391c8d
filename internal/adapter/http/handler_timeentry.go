package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tempora/tempora/internal/domain"
	"github.com/tempora/tempora/internal/ports"
	"github.com/tempora/tempora/internal/usecase"
	"github.com/tempora/tempora/pkg/apperror"
)

// TimeEntryHandler translates HTTP requests into timer, entry and lifecycle
// operations and maps their error kinds onto stable status codes.
type TimeEntryHandler struct {
	timerUseCase     *usecase.TimerUseCase
	entryUseCase     *usecase.EntryUseCase
	lifecycleUseCase *usecase.LifecycleUseCase
	notifier         ports.NotificationService
	logger           *logrus.Logger
}

// NewTimeEntryHandler creates a new time entry handler
func NewTimeEntryHandler(
	timerUseCase *usecase.TimerUseCase,
	entryUseCase *usecase.EntryUseCase,
	lifecycleUseCase *usecase.LifecycleUseCase,
	notifier ports.NotificationService,
	logger *logrus.Logger,
) *TimeEntryHandler {
	return &TimeEntryHandler{
		timerUseCase:     timerUseCase,
		entryUseCase:     entryUseCase,
		lifecycleUseCase: lifecycleUseCase,
		notifier:         notifier,
		logger:           logger,
	}
}

// RegisterRoutes registers time entry routes on the /api/v1 subrouter.
func (h *TimeEntryHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/timer/start", h.StartTimer).Methods("POST")
	router.HandleFunc("/timer/stop", h.StopTimer).Methods("POST")
	router.HandleFunc("/timer", h.CurrentTimer).Methods("GET")
	router.HandleFunc("/timer", h.DiscardTimer).Methods("DELETE")

	router.HandleFunc("/entries", h.CreateEntry).Methods("POST")
	router.HandleFunc("/entries", h.ListEntries).Methods("GET")
	router.HandleFunc("/entries/bulk/approve", h.BulkApprove).Methods("POST")
	router.HandleFunc("/entries/bulk/reject", h.BulkReject).Methods("POST")
	router.HandleFunc("/entries/{id}", h.GetEntry).Methods("GET")
	router.HandleFunc("/entries/{id}", h.UpdateEntry).Methods("PATCH")
	router.HandleFunc("/entries/{id}", h.DeleteEntry).Methods("DELETE")
	router.HandleFunc("/entries/{id}/submit", h.SubmitEntry).Methods("POST")
	router.HandleFunc("/entries/{id}/approve", h.ApproveEntry).Methods("POST")
	router.HandleFunc("/entries/{id}/reject", h.RejectEntry).Methods("POST")
	router.HandleFunc("/entries/{id}/lock", h.LockEntry).Methods("POST")
	router.HandleFunc("/entries/{id}/unlock", h.UnlockEntry).Methods("POST")
}

// StartTimer handles starting a running timer
func (h *TimeEntryHandler) StartTimer(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req usecase.StartTimerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			return
		}
	}

	entry, err := h.timerUseCase.StartTimer(r.Context(), principal.UserID, principal.TenantID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// StopTimer handles stopping the running timer
func (h *TimeEntryHandler) StopTimer(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req usecase.StopTimerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			return
		}
	}

	entry, err := h.timerUseCase.StopTimer(r.Context(), principal.UserID, principal.TenantID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// CurrentTimer returns the caller's running timer, if any
func (h *TimeEntryHandler) CurrentTimer(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	entry, err := h.timerUseCase.CurrentTimer(r.Context(), principal.UserID, principal.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DiscardTimer soft-deletes the running timer without producing a record
func (h *TimeEntryHandler) DiscardTimer(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	if err := h.timerUseCase.DiscardTimer(r.Context(), principal.UserID, principal.TenantID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateEntry handles manual entry creation
func (h *TimeEntryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req usecase.CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	entry, err := h.entryUseCase.CreateEntry(r.Context(), principal.UserID, principal.TenantID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListEntries lists the caller's active entries
func (h *TimeEntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	filter := ports.EntryFilter{Limit: 50}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := domain.EntryStatus(statusParam)
		filter.Status = &status
	}
	if fromParam := r.URL.Query().Get("from"); fromParam != "" {
		if from, err := time.Parse(time.RFC3339, fromParam); err == nil {
			filter.From = &from
		}
	}
	if toParam := r.URL.Query().Get("to"); toParam != "" {
		if to, err := time.Parse(time.RFC3339, toParam); err == nil {
			filter.To = &to
		}
	}

	entries, err := h.entryUseCase.ListEntries(r.Context(), principal.UserID, principal.TenantID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetEntry returns a single entry within the caller's tenant
func (h *TimeEntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	entry, err := h.entryUseCase.GetEntry(r.Context(), principal.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// UpdateEntry edits a DRAFT or REJECTED entry owned by the caller
func (h *TimeEntryHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req usecase.UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	entry, err := h.entryUseCase.UpdateEntry(r.Context(), principal.UserID, principal.TenantID, mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteEntry soft-deletes an entry owned by the caller
func (h *TimeEntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	if err := h.entryUseCase.DeleteEntry(r.Context(), principal.UserID, principal.TenantID, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitEntry moves an entry into SUBMITTED
func (h *TimeEntryHandler) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	entry, err := h.lifecycleUseCase.SubmitEntry(r.Context(), principal.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ApproveEntry moves a SUBMITTED entry into APPROVED
func (h *TimeEntryHandler) ApproveEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireRole(w, r, RoleApprover, RoleAdmin)
	if !ok {
		return
	}

	entry, err := h.lifecycleUseCase.ApproveEntry(r.Context(), principal.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.notifier.NotifyEntryApproved(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("approval notification failed")
	}
	writeJSON(w, http.StatusOK, entry)
}

// RejectEntry moves a SUBMITTED entry into REJECTED with a mandatory note
func (h *TimeEntryHandler) RejectEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireRole(w, r, RoleApprover, RoleAdmin)
	if !ok {
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	entry, err := h.lifecycleUseCase.RejectEntry(r.Context(), principal.TenantID, mux.Vars(r)["id"], req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.notifier.NotifyEntryRejected(r.Context(), entry, req.Note); err != nil {
		h.logger.WithError(err).Warn("rejection notification failed")
	}
	writeJSON(w, http.StatusOK, entry)
}

// LockEntry sets the administrative lock flag
func (h *TimeEntryHandler) LockEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireRole(w, r, RoleAdmin)
	if !ok {
		return
	}

	entry, err := h.lifecycleUseCase.LockEntry(r.Context(), principal.TenantID, mux.Vars(r)["id"], principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// UnlockEntry lifts the administrative lock flag
func (h *TimeEntryHandler) UnlockEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireRole(w, r, RoleAdmin)
	if !ok {
		return
	}

	entry, err := h.lifecycleUseCase.UnlockEntry(r.Context(), principal.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type bulkRequest struct {
	EntryIDs []string `json:"entry_ids"`
	Note     string   `json:"note,omitempty"`
}

type bulkOutcomeBody struct {
	EntryID string `json:"entry_id"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// BulkApprove approves up to 100 entries, reporting per-id outcomes
func (h *TimeEntryHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireRole(w, r, RoleApprover, RoleAdmin)
	if !ok {
		return
	}

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	outcomes, err := h.lifecycleUseCase.BulkApprove(r.Context(), principal.TenantID, req.EntryIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		if err := h.notifier.NotifyEntryApproved(r.Context(), outcome.Entry); err != nil {
			h.logger.WithError(err).Warn("approval notification failed")
		}
	}
	writeJSON(w, http.StatusMultiStatus, toBulkBody(outcomes))
}

// BulkReject rejects up to 100 entries with a shared note, reporting per-id outcomes
func (h *TimeEntryHandler) BulkReject(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireRole(w, r, RoleApprover, RoleAdmin)
	if !ok {
		return
	}

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	outcomes, err := h.lifecycleUseCase.BulkReject(r.Context(), principal.TenantID, req.EntryIDs, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		if err := h.notifier.NotifyEntryRejected(r.Context(), outcome.Entry, req.Note); err != nil {
			h.logger.WithError(err).Warn("rejection notification failed")
		}
	}
	writeJSON(w, http.StatusMultiStatus, toBulkBody(outcomes))
}

func (h *TimeEntryHandler) requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (Principal, bool) {
	principal, ok := principalFrom(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return Principal{}, false
	}
	for _, role := range roles {
		if principal.Role == role {
			return principal, true
		}
	}
	writeErrorResponse(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
	return Principal{}, false
}

func toBulkBody(outcomes []usecase.BulkOutcome) []bulkOutcomeBody {
	body := make([]bulkOutcomeBody, 0, len(outcomes))
	for _, outcome := range outcomes {
		item := bulkOutcomeBody{EntryID: outcome.EntryID, Success: outcome.Err == nil}
		if outcome.Err != nil {
			mapped := apperror.Map(outcome.Err)
			item.Code = mapped.Code
			item.Message = mapped.Message
		}
		body = append(body, item)
	}
	return body
}
