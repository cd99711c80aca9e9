// Package postgres persists training definitions: the intents, entity tables
// and pattern definitions a bot was trained from.  Models themselves live in
// object storage; this store exists so operators can retrain a bot without
// re-supplying its definitions.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/converso-ai/nlu-engine/internal/config"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// Pool manages the pgx connection pool.
type Pool struct {
	pool   *pgxpool.Pool
	logger logging.Logger
	once   sync.Once
}

// NewPool connects and verifies the connection with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*Pool, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	pcfg, err := pgxpool.ParseConfig(BuildDSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "parse postgres dsn")
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "create postgres pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrapf(err, errors.ErrCodeServiceUnavailable, "connect to postgres at %s:%d", cfg.Host, cfg.Port)
	}

	logger.Info("postgres connected",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.DBName))
	return &Pool{pool: pool, logger: logger.Named("postgres")}, nil
}

// Raw returns the underlying pgx pool.
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }

// HealthCheck pings the database.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "postgres unreachable")
	}
	return nil
}

// Close releases the pool.  Safe to call more than once.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.pool.Close()
		p.logger.Info("postgres pool closed")
	})
}

// BuildDSN constructs a postgres connection URL from the config.
func BuildDSN(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     cfg.DBName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}
