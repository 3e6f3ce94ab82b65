package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/physio-portal/internal/audit"
	appconfig "github.com/wolfman30/physio-portal/internal/config"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

// BuildAuditService connects the audit log to Postgres. Without DATABASE_URL
// the returned service drops events. The cleanup func is never nil.
func BuildAuditService(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*audit.Service, func(), error) {
	if cfg == nil {
		return nil, func() {}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Info("audit log disabled; DATABASE_URL not set")
		return audit.NewService(nil), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("audit log enabled")
	return audit.NewService(pool), pool.Close, nil
}
