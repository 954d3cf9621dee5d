package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/insights"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// pageSize is the fixed page size for transaction listings.
const pageSize = 5

// flaggedCacheTTL bounds staleness of cached suspicious-transaction views.
const flaggedCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	detector *rules.Detector
	engine   *rules.Engine
	insights *insights.Service
	velocity *velocity.Service
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, detector *rules.Detector, engine *rules.Engine, insightsSvc *insights.Service, velocitySvc *velocity.Service, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		detector: detector,
		engine:   engine,
		insights: insightsSvc,
		velocity: velocitySvc,
		version:  version,
	}
}

// TransactionPage is the paginated response for account transaction listings.
type TransactionPage struct {
	Count    int                   `json:"count"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
	Results  []*domain.Transaction `json:"results"`
}

// ListAccountTransactions handles GET /accounts/{account_id}/transactions.
// Transactions come back in chronological order; unknown accounts yield an
// empty page rather than an error.
func (h *Handler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := chi.URLParam(r, "account_id")

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "page must be a positive integer",
			})
			return
		}
		page = n
	}

	txs, err := h.repo.TransactionsByAccount(ctx, accountID)
	if err != nil {
		slog.Error("failed to list transactions", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(txs) {
		start = len(txs)
	}
	if end > len(txs) {
		end = len(txs)
	}

	writeJSON(w, http.StatusOK, TransactionPage{
		Count:    len(txs),
		Page:     page,
		PageSize: pageSize,
		Results:  txs[start:end],
	})
}

// ListFlaggedTransactions handles GET /accounts/{account_id}/flagged.
// Runs the anomaly rules over the account's full history. Results are
// cached per account; the worker drops the entry when new transactions land.
func (h *Handler) ListFlaggedTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := chi.URLParam(r, "account_id")

	cacheKey := domain.CacheKeyFlagged + accountID
	if h.cache != nil {
		if data, err := h.cache.Get(ctx, cacheKey); err == nil && data != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
	}

	txs, err := h.repo.TransactionsByAccount(ctx, accountID)
	if err != nil {
		slog.Error("failed to list transactions", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}

	flagged := h.detector.Suspicious(ctx, txs)
	if flagged == nil {
		flagged = []*domain.Transaction{}
	}

	if h.cache != nil {
		if data, err := json.Marshal(flagged); err == nil {
			_ = h.cache.Set(ctx, cacheKey, data, flaggedCacheTTL)
		}
	}

	writeJSON(w, http.StatusOK, flagged)
}

// GetSpendingInsights handles GET /accounts/{account_id}/spending-insights.
func (h *Handler) GetSpendingInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := chi.URLParam(r, "account_id")

	result, err := h.insights.SpendingInsights(ctx, accountID)
	if err != nil {
		slog.Error("failed to compute spending insights", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute spending insights",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetMerchantSummary handles GET /merchants/{merchant_id}/summary.
func (h *Handler) GetMerchantSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := chi.URLParam(r, "merchant_id")

	summary, err := h.insights.MerchantSummary(ctx, merchantID)
	if err != nil {
		slog.Error("failed to summarize merchant", "merchant_id", merchantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to summarize merchant",
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetHighFrequencyAccounts handles GET /accounts/high-frequency.
func (h *Handler) GetHighFrequencyAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	periodDays := 0
	if d := r.URL.Query().Get("days"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "days must be a positive integer",
			})
			return
		}
		periodDays = n
	}

	report, err := h.velocity.HighFrequencyAccounts(ctx, periodDays)
	if err != nil {
		slog.Error("failed to scan high-frequency accounts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to scan high-frequency accounts",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// CreateTransaction handles POST /transactions.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := req.Validate(now); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Referential checks against stored entities.
	exists, err := h.repo.AccountExists(ctx, req.AccountID)
	if err != nil {
		h.storageError(w, "account lookup failed", err)
		return
	}
	if !exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid AccountID. Account does not exist.",
		})
		return
	}

	exists, err = h.repo.MerchantExists(ctx, req.MerchantID)
	if err != nil {
		h.storageError(w, "merchant lookup failed", err)
		return
	}
	if !exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid MerchantID. Merchant does not exist.",
		})
		return
	}

	exists, err = h.repo.DeviceExists(ctx, req.DeviceID)
	if err != nil {
		h.storageError(w, "device lookup failed", err)
		return
	}
	if !exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid DeviceID. Device does not exist.",
		})
		return
	}

	txID, err := h.repo.NextTransactionID(ctx)
	if err != nil {
		h.storageError(w, "failed to allocate transaction id", err)
		return
	}

	tx := req.ToTransaction(now)
	tx.ID = txID

	if err := h.repo.SaveTransaction(ctx, tx); err != nil {
		h.storageError(w, "failed to save transaction", err)
		return
	}

	// Notify async consumers so cached analytics get invalidated.
	if h.bus != nil {
		payload, err := json.Marshal(worker.TransactionEvent{
			TransactionID: tx.ID,
			AccountID:     tx.AccountID,
		})
		if err == nil {
			if err := h.bus.Publish(ctx, domain.TopicTransactionCreated, payload); err != nil {
				slog.Error("failed to publish transaction event",
					"transaction_id", tx.ID,
					"error", err,
				)
			}
		}
	}

	slog.Info("transaction created",
		"transaction_id", tx.ID,
		"account_id", tx.AccountID,
	)

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":       "Transaction added successfully",
		"transactionId": tx.ID,
	})
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(ctx, txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}
	if err != nil {
		h.storageError(w, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates a new flag rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
	}

	// Compile-check the CEL expression without touching the live engine;
	// POST /rules/reload is the only activation path.
	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
		slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func (h *Handler) storageError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
