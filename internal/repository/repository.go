// Package repository provides the audit trail persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/shikra/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction appends an assessed transaction to the audit trail.
func (r *SQLRepository) SaveTransaction(ctx context.Context, userID string, tx *domain.HistoricalTransaction) error {
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, type, amount, recipient, risk_score, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.NewString(), userID, tx.Type,
		tx.Amount, tx.Recipient, tx.RiskScore, tx.Timestamp,
	)
	return err
}

// SaveAssessment stores a completed risk assessment.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: assessment with ID is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(a.Factors)
	screenHits, _ := json.Marshal(a.ScreenHits)

	query := `
		INSERT INTO assessments (
			id, user_id, risk_score, risk_level, action,
			should_block, should_verify, factors, screen_hits,
			alert_id, recommendation, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.UserID, a.RiskScore, a.RiskLevel, a.Action,
		boolToInt(a.ShouldBlock), boolToInt(a.ShouldVerify),
		string(factors), string(screenHits),
		a.AlertID, a.Recommendation, a.Timestamp,
	)
	return err
}

// GetAssessment retrieves an assessment by ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, id string) (*domain.RiskAssessment, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, risk_score, risk_level, action,
			   should_block, should_verify, factors, screen_hits,
			   alert_id, recommendation, timestamp
		FROM assessments
		WHERE id = ?
	`

	var a domain.RiskAssessment
	var shouldBlock, shouldVerify int
	var factors, screenHits string

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&a.ID, &a.UserID, &a.RiskScore, &a.RiskLevel, &a.Action,
		&shouldBlock, &shouldVerify, &factors, &screenHits,
		&a.AlertID, &a.Recommendation, &a.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.ShouldBlock = shouldBlock == 1
	a.ShouldVerify = shouldVerify == 1
	json.Unmarshal([]byte(factors), &a.Factors)
	if screenHits != "" {
		json.Unmarshal([]byte(screenHits), &a.ScreenHits)
	}

	return &a, nil
}

// SaveAlert stores a raised alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert with ID is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(alert.Factors)

	query := `
		INSERT INTO alerts (
			id, user_id, tx_type, amount, recipient,
			risk_score, risk_level, action, factors, resolved, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.UserID,
		alert.Transaction.Type, alert.Transaction.Amount, alert.Transaction.Recipient,
		alert.RiskScore, alert.RiskLevel, alert.Action,
		string(factors), boolToInt(alert.Resolved), alert.Timestamp,
	)
	return err
}

// ListAlertsByUser retrieves persisted alerts for one user, newest first.
func (r *SQLRepository) ListAlertsByUser(ctx context.Context, userID string, limit int) ([]*domain.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, tx_type, amount, recipient,
			   risk_score, risk_level, action, factors, resolved, timestamp
		FROM alerts
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var factors string
		var resolved int

		if err := rows.Scan(
			&a.ID, &a.UserID,
			&a.Transaction.Type, &a.Transaction.Amount, &a.Transaction.Recipient,
			&a.RiskScore, &a.RiskLevel, &a.Action,
			&factors, &resolved, &a.Timestamp,
		); err != nil {
			return nil, err
		}

		a.Resolved = resolved == 1
		json.Unmarshal([]byte(factors), &a.Factors)
		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// SaveScreenRule stores or updates a screening rule configuration.
func (r *SQLRepository) SaveScreenRule(ctx context.Context, rule *domain.ScreenRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule with ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO screen_rules (
			id, name, description, expression, action, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			action = excluded.action,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Action, boolToInt(rule.Enabled), createdAt, now,
	)
	return err
}

// ListScreenRules retrieves all screening rules.
func (r *SQLRepository) ListScreenRules(ctx context.Context) ([]*domain.ScreenRule, error) {
	query := `
		SELECT id, name, description, expression, action, enabled, created_at, updated_at
		FROM screen_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreenRule
	for rows.Next() {
		var rule domain.ScreenRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
			&rule.Action, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
