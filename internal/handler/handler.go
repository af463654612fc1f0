package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"rwsplit/internal/domain"
	"rwsplit/internal/pool"
	"rwsplit/internal/repository"
	"rwsplit/internal/service"
)

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AccountHandler handles account API requests
type AccountHandler struct {
	svc *service.AccountService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// CreateAccountRequest is the body of POST /api/accounts
type CreateAccountRequest struct {
	Email      string         `json:"email"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ListAccountsResponse is the body of GET /api/accounts
type ListAccountsResponse struct {
	Accounts []*domain.Account `json:"accounts"`
	Total    int               `json:"total"`
}

// ListAccounts returns accounts, optionally filtered by status
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AccountFilter{
		Status: domain.AccountStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, "Invalid status", "unknown status "+string(filter.Status), http.StatusBadRequest)
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, "Invalid limit", err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, "Invalid offset", err.Error(), http.StatusBadRequest)
		return
	}

	accounts, total, err := h.svc.ListAccounts(r.Context(), filter, consistent(r))
	if err != nil {
		writeServiceError(w, "Failed to list accounts", err)
		return
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}

	writeJSON(w, ListAccountsResponse{Accounts: accounts, Total: total}, http.StatusOK)
}

// GetAccount returns a single account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Invalid account ID", "Account ID is required", http.StatusBadRequest)
		return
	}

	acct, err := h.svc.GetAccount(r.Context(), id, consistent(r))
	if err != nil {
		writeServiceError(w, "Failed to get account", err)
		return
	}

	writeJSON(w, acct, http.StatusOK)
}

// CreateAccount creates a new account
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := h.svc.CreateAccount(r.Context(), req.Email, req.Name, req.Properties)
	if err != nil {
		writeServiceError(w, "Failed to create account", err)
		return
	}

	w.Header().Set("Location", "/api/accounts/"+acct.ID)
	writeJSON(w, acct, http.StatusCreated)
}

// UpdateAccount applies a partial update to an account
func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Invalid account ID", "Account ID is required", http.StatusBadRequest)
		return
	}

	var update domain.AccountUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := h.svc.UpdateAccount(r.Context(), id, update)
	if err != nil {
		writeServiceError(w, "Failed to update account", err)
		return
	}

	writeJSON(w, acct, http.StatusOK)
}

// DeleteAccount deletes an account
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Invalid account ID", "Account ID is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.DeleteAccount(r.Context(), id); err != nil {
		writeServiceError(w, "Failed to delete account", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// consistent reports whether the request asked for a primary read
func consistent(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("consistent"))
	return err == nil && v
}

func intParam(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case pool.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s: %v", msg, err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, msg, err.Error(), status)
}

// Helper functions

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
