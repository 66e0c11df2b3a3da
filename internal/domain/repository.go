package domain

import (
	"context"
	"time"
)

// Repository is the write-side audit store. The scoring hot path never reads
// from it: assessments are computed from the in-memory profile store only,
// and repository writes happen after scoring, best-effort.
type Repository interface {
	// Audit trail
	SaveTransaction(ctx context.Context, userID string, tx *HistoricalTransaction) error
	SaveAssessment(ctx context.Context, a *RiskAssessment) error
	GetAssessment(ctx context.Context, id string) (*RiskAssessment, error)
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlertsByUser(ctx context.Context, userID string, limit int) ([]*Alert, error)

	// Screening rule configuration
	SaveScreenRule(ctx context.Context, rule *ScreenRule) error
	ListScreenRules(ctx context.Context) ([]*ScreenRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
