package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/shikra/internal/alerts"
	"github.com/opensource-finance/shikra/internal/domain"
	"github.com/opensource-finance/shikra/internal/engine"
	"github.com/opensource-finance/shikra/internal/repository"
	"github.com/opensource-finance/shikra/internal/screening"
)

// assessmentCacheTTL bounds the read-through cache for persisted assessments.
const assessmentCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	engine   *engine.Engine
	ledger   *alerts.Ledger
	screener *screening.Engine
	repo     domain.Repository
	cache    domain.Cache
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, ledger *alerts.Ledger, screener *screening.Engine, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		engine:   eng,
		ledger:   ledger,
		screener: screener,
		repo:     repo,
		cache:    cache,
		version:  version,
	}
}

// AssessRequest is the request body for POST /api/v1/assess.
type AssessRequest struct {
	UserID      string  `json:"userId"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Recipient   string  `json:"recipient,omitempty"`
	Description string  `json:"description,omitempty"`
	Platform    string  `json:"platform,omitempty"`
}

// Assess handles POST /api/v1/assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId is required",
		})
		return
	}

	tx := domain.Transaction{
		Type:        domain.TransactionType(req.Type),
		Amount:      req.Amount,
		Recipient:   req.Recipient,
		Description: req.Description,
		Platform:    req.Platform,
	}

	assessment, err := h.engine.Assess(ctx, req.UserID, tx)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransaction) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("assessment failed", "user_id", req.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetAssessment retrieves a persisted assessment by ID, cache first.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	cacheKey := "assessment:" + id
	if h.cache != nil {
		if data, err := h.cache.Get(ctx, cacheKey); err == nil && data != nil {
			var a domain.RiskAssessment
			if json.Unmarshal(data, &a) == nil {
				writeJSON(w, http.StatusOK, &a)
				return
			}
		}
	}

	a, err := h.repo.GetAssessment(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "assessment not found",
			})
			return
		}
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get assessment",
		})
		return
	}

	if h.cache != nil {
		if data, err := json.Marshal(a); err == nil {
			h.cache.Set(ctx, cacheKey, data, assessmentCacheTTL)
		}
	}

	writeJSON(w, http.StatusOK, a)
}

// Dashboard returns the aggregate fraud report.
// Pass ?format=text for the plain-text operator rendering.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d := h.engine.Dashboard(r.Context())

	if r.URL.Query().Get("format") == "text" {
		writeText(w, alerts.FormatDashboard(d))
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// UserRisk returns the per-user risk profile.
func (h *Handler) UserRisk(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	profile := h.engine.UserRiskProfile(userID)
	writeJSON(w, http.StatusOK, profile)
}

// ListAlerts returns recent alerts from the ledger, newest first.
// Filters: ?user= for one user, ?limit= to bound the result.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	var list []domain.AlertSummary
	if userID := r.URL.Query().Get("user"); userID != "" {
		list = h.ledger.ListByUser(userID, limit)
	} else {
		list = h.ledger.Recent(limit)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": list,
		"count":  len(list),
	})
}

// GetAlert retrieves a single alert by ID.
// Pass ?format=text for the plain-text operator rendering.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, ok := h.ledger.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}

	if r.URL.Query().Get("format") == "text" {
		writeText(w, alerts.FormatAlert(alert))
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
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

// ListRules returns all screening rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.screener.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a screening rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.screener.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a screening rule.
type CreateRuleRequest struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Expression  string        `json:"expression"`
	Action      domain.Action `json:"action"`
	Enabled     bool          `json:"enabled"`
}

// CreateRule creates a new screening rule and saves it to the database.
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

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Action != domain.ActionBlock && req.Action != domain.ActionFlagForReview && req.Action != domain.ActionRequireVerification {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action must be BLOCK, FLAG_FOR_REVIEW, or REQUIRE_VERIFICATION",
		})
		return
	}

	rule := &domain.ScreenRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Action:      req.Action,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression without loading it
	if err := h.screener.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository
	if h.repo != nil {
		if err := h.repo.SaveScreenRule(ctx, rule); err != nil {
			slog.Error("failed to save screen rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("screen rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all screening rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListScreenRules(ctx)
	if err != nil {
		slog.Error("failed to list screen rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.screener.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload screen rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("screen rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.screener.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
