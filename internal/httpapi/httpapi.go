package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/roles"
	"mystore/backend/internal/service"
	"mystore/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	logger        *logrus.Entry
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *logrus.Entry) *API {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		panic(fmt.Sprintf("httpapi: csrf secret: %v", err))
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		logger:        logger.WithField("module", "httpapi"),
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes the HMAC token of one hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour's token.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("GET /api/v1/products", a.requireCapability(roles.ProductsView, a.handleListProducts))
	mux.HandleFunc("POST /api/v1/products", a.requireCapability(roles.ProductsEdit, a.handleCreateProduct))
	mux.HandleFunc("GET /api/v1/products/stats", a.requireCapability(roles.ProductsView, a.handleProductStats))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireCapability(roles.ProductsView, a.handleGetProduct))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireCapability(roles.ProductsEdit, a.handleUpdateProduct))
	mux.HandleFunc("POST /api/v1/products/{id}/stock", a.requireCapability(roles.ProductsEdit, a.handleAdjustStock))
	mux.HandleFunc("POST /api/v1/stock-transfers", a.requireCapability(roles.ProductsEdit, a.handleTransferStock))

	mux.HandleFunc("POST /api/v1/checkout", a.requireCapability(roles.SalesEdit, a.handleCheckout))
	mux.HandleFunc("GET /api/v1/receipts", a.requireCapability(roles.SalesView, a.handleListReceipts))
	mux.HandleFunc("GET /api/v1/receipts/{id}", a.requireCapability(roles.SalesView, a.handleGetReceipt))
	mux.HandleFunc("GET /api/v1/payments/{id}", a.requireCapability(roles.PaymentsView, a.handleGetPayment))
	mux.HandleFunc("POST /api/v1/payments/{id}/lines", a.requireCapability(roles.PaymentsEdit, a.handleAddPayment))
	mux.HandleFunc("PATCH /api/v1/payment-lines/{id}", a.requireCapability(roles.PaymentsEdit, a.handlePaymentLineStatus))

	mux.HandleFunc("GET /api/v1/returns", a.requireCapability(roles.ReturnsView, a.handleListReturns))
	mux.HandleFunc("POST /api/v1/returns", a.requireCapability(roles.ReturnsEdit, a.handleCreateReturn))
	mux.HandleFunc("GET /api/v1/returns/{id}", a.requireCapability(roles.ReturnsView, a.handleGetReturn))
	mux.HandleFunc("POST /api/v1/returns/{id}/approve", a.requireCapability(roles.ReturnsApprove, a.handleApproveReturn))
	mux.HandleFunc("POST /api/v1/returns/{id}/reject", a.requireCapability(roles.ReturnsApprove, a.handleRejectReturn))
	mux.HandleFunc("POST /api/v1/returns/{id}/cancel", a.requireCapability(roles.ReturnsEdit, a.handleCancelReturn))
	mux.HandleFunc("POST /api/v1/returns/{id}/complete", a.requireCapability(roles.ReturnsComplete, a.handleCompleteReturn))
	mux.HandleFunc("POST /api/v1/returns/{id}/items/{itemID}/restock", a.requireCapability(roles.ReturnsComplete, a.handleRestockReturnItem))

	mux.HandleFunc("GET /api/v1/customers", a.requireCapability(roles.CustomersView, a.handleListCustomers))
	mux.HandleFunc("POST /api/v1/customers", a.requireCapability(roles.CustomersEdit, a.handleCreateCustomer))
	mux.HandleFunc("GET /api/v1/customers/{id}", a.requireCapability(roles.CustomersView, a.handleGetCustomer))
	mux.HandleFunc("GET /api/v1/customers/{id}/store-credits", a.requireCapability(roles.StoreCreditsView, a.handleCustomerCredits))
	mux.HandleFunc("POST /api/v1/store-credits/redeem", a.requireCapability(roles.StoreCreditsRedeem, a.handleRedeemCredit))

	mux.HandleFunc("GET /api/v1/audit-logs", a.requireCapability(roles.AuditView, a.handleAuditLogs))
	mux.HandleFunc("GET /api/v1/users", a.requireCapability(roles.UsersManage, a.handleListUsers))
	mux.HandleFunc("POST /api/v1/users", a.requireCapability(roles.UsersManage, a.handleCreateUser))

	return a.withMiddleware(mux)
}

func (a *API) requireCapability(capability roles.Capability, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if !roles.Allows(actor.Role, capability) {
			writeError(w, http.StatusForbidden, fmt.Errorf("role %s lacks %s", actor.Role, capability))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns the token mutating requests carry in X-CSRF-Token.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
	})
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrOverReturn),
		errors.Is(err, domain.ErrInsufficientCredit):
		return http.StatusConflict
	case errors.Is(err, domain.ErrReturnWindowClosed),
		errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrCreditOwner):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.logger.WithError(err).Error("request failed")
	}
	writeError(w, status, err)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", raw)
	}
	return &parsed, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeError hides the message of 5xx responses; 4xx messages are user-facing.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
