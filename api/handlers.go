/*
handlers.go - HTTP API handlers for the credits back-office

PURPOSE:
  Exposes the credits transfer service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Transfers:
    POST /api/transfers/recipient  Resolve a recipient by identifier
    POST /api/transfers/check      Advisory sender balance check
    POST /api/transfers            Execute a transfer

  Accounts:
    GET  /api/accounts                 List accounts
    POST /api/accounts                 Create account
    GET  /api/accounts/{id}            Get account
    GET  /api/accounts/{id}/transfers  Enriched transfer history

ERROR HANDLING:
  Every operation returns the {success, error, error_kind} envelope; typed
  domain errors map to HTTP status:
  - validation         400
  - not_found          404
  - insufficient_funds 422
  - internal           500

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - credits/service.go: Domain logic
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atmgo/backoffice/credits"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *credits.Service
	Store   credits.TxStore
}

// NewHandler creates a handler around the transfer service and its store.
func NewHandler(service *credits.Service, store credits.TxStore) *Handler {
	return &Handler{Service: service, Store: store}
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

// FindRecipient resolves an active account by merchant code, email, or
// contact number.
func (h *Handler) FindRecipient(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r)()

	var req FindRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body", credits.KindValidation)
		return
	}

	acct, err := h.Service.ResolveRecipient(r.Context(), req.Identifier)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, Envelope{Success: true, Data: map[string]any{
		"user": RecipientDTO{
			ID:           acct.ID,
			MerchantCode: acct.MerchantCode,
			Name:         acct.DisplayName(),
			Status:       string(acct.Status),
		},
	}})
}

// CheckBalance reports whether the sender can cover amount + service fee.
// Advisory only: Transfer re-checks inside its transaction.
func (h *Handler) CheckBalance(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r)()

	var req CheckBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body", credits.KindValidation)
		return
	}

	check, err := h.Service.CheckBalance(r.Context(), req.SenderID, req.Amount, req.ServiceFee)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	if !check.OK {
		ife := &credits.InsufficientFundsError{Available: check.Available, Required: check.Required}
		h.respondError(w, r, http.StatusUnprocessableEntity, ife.Error(), credits.KindInsufficientFunds)
		return
	}

	h.respond(w, r, http.StatusOK, Envelope{Success: true, Data: BalanceCheckDTO{
		AvailableCredits: check.Available,
		TotalDeduction:   check.Required,
	}})
}

// ExecuteTransfer performs an atomic credits transfer.
func (h *Handler) ExecuteTransfer(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r)()

	var req ExecuteTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body", credits.KindValidation)
		return
	}

	// Legacy clients send a pre-computed total. The caller-controlled
	// deduction path is gone; a divergent total is rejected outright.
	if req.TotalDeduction != nil && !req.TotalDeduction.Equal(req.Amount.Add(req.ServiceFee)) {
		transfersTotal.WithLabelValues("rejected").Inc()
		h.respondError(w, r, http.StatusBadRequest,
			"total_deduction must equal amount + service_fee", credits.KindValidation)
		return
	}

	ref := credits.RecipientRef{ID: req.RecipientID, Identifier: req.RecipientIdentifier}
	result, err := h.Service.Transfer(r.Context(), req.SenderID, ref, req.Amount, req.ServiceFee, req.Note)
	if err != nil {
		transfersTotal.WithLabelValues(string(credits.KindOf(err))).Inc()
		h.respondDomainError(w, r, err)
		return
	}

	transfersTotal.WithLabelValues("completed").Inc()
	h.respond(w, r, http.StatusCreated, Envelope{Success: true, Data: TransferResultDTO{
		TransactionID:       result.TransferID,
		Amount:              result.Amount,
		TotalDeducted:       result.TotalDeducted,
		NewSenderBalance:    result.NewSenderBalance,
		NewRecipientBalance: result.NewRecipientBalance,
		SenderName:          result.SenderName,
		RecipientName:       result.RecipientName,
	}})
}

// TransferHistory returns the most recent transfers involving an account.
func (h *Handler) TransferHistory(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r)()

	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid account id", credits.KindValidation)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			h.respondError(w, r, http.StatusBadRequest, "Invalid limit", credits.KindValidation)
			return
		}
	}

	entries, err := h.Service.History(r.Context(), accountID, limit)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toHistoryEntryDTO(e)
	}
	h.respond(w, r, http.StatusOK, Envelope{Success: true, Data: dtos})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r)()

	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "Failed to list accounts", credits.KindInternal)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	h.respond(w, r, http.StatusOK, Envelope{Success: true, Data: dtos})
}

// CreateAccount registers a new account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r)()

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body", credits.KindValidation)
		return
	}
	if req.Balance.IsNegative() {
		h.respondError(w, r, http.StatusBadRequest, "balance must not be negative", credits.KindValidation)
		return
	}
	if req.Status != "" && !credits.AccountStatus(req.Status).Valid() {
		h.respondError(w, r, http.StatusBadRequest,
			"status must be one of active, pending, suspended", credits.KindValidation)
		return
	}

	acct := credits.Account{
		MerchantCode: req.MerchantCode,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Status:       credits.AccountStatus(req.Status),
		Balance:      req.Balance,
	}
	id, err := h.Store.SaveAccount(r.Context(), acct)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "Failed to create account", credits.KindInternal)
		return
	}

	saved, err := h.Store.GetAccount(r.Context(), id)
	if err != nil || saved == nil {
		h.respondError(w, r, http.StatusInternalServerError, "Failed to load created account", credits.KindInternal)
		return
	}
	h.respond(w, r, http.StatusCreated, Envelope{Success: true, Data: toAccountDTO(*saved)})
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r)()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid account id", credits.KindValidation)
		return
	}

	acct, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "Failed to get account", credits.KindInternal)
		return
	}
	if acct == nil {
		h.respondError(w, r, http.StatusNotFound, "Account not found", credits.KindNotFound)
		return
	}
	h.respond(w, r, http.StatusOK, Envelope{Success: true, Data: toAccountDTO(*acct)})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// observe starts the latency timer for the routed endpoint. Call as
// `defer h.observe(r)()` at the top of a handler.
func (h *Handler) observe(r *http.Request) func() {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(r.Method, routePattern(r)))
	return func() { timer.ObserveDuration() }
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, env Envelope) {
	httpReqTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, message string, kind credits.ErrorKind) {
	h.respond(w, r, status, Envelope{Success: false, Error: message, ErrorKind: string(kind)})
}

// respondDomainError maps a typed domain error onto the envelope and an
// HTTP status.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := credits.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case credits.KindValidation:
		status = http.StatusBadRequest
	case credits.KindNotFound:
		status = http.StatusNotFound
	case credits.KindInsufficientFunds:
		status = http.StatusUnprocessableEntity
	}
	h.respondError(w, r, status, err.Error(), kind)
}
