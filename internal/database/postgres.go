package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"flowdesk/internal/apperr"
)

// Postgres error codes the gateway reacts to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgUndefinedTable      = "42P01"
)

// Config holds the connection settings for the Postgres gateway.
type Config struct {
	URL          string
	MaxOpenConns int
	LogQueries   bool
}

// Postgres implements Store with GORM over the pgx driver.
type Postgres struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Postgres, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	pgxCfg, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	sqlDB := stdlib.OpenDB(*pgxCfg)
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	logLevel := logger.Warn
	if cfg.LogQueries {
		logLevel = logger.Info
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: gormDB, sqlDB: sqlDB}, nil
}

// SQLDB exposes the pool for the migration runner.
func (p *Postgres) SQLDB() *sql.DB {
	return p.sqlDB
}

func (p *Postgres) Invitations() InvitationRepository     { return &invitationRepo{db: p.db} }
func (p *Postgres) Workflows() WorkflowRepository         { return &workflowRepo{db: p.db} }
func (p *Postgres) History() HistoryRepository            { return &historyRepo{db: p.db} }
func (p *Postgres) Collaborators() CollaboratorRepository { return &collaboratorRepo{db: p.db} }
func (p *Postgres) Directory() DirectoryRepository        { return &directoryRepo{db: p.db} }
func (p *Postgres) Companies() CompanyRepository          { return &companyRepo{db: p.db} }
func (p *Postgres) Templates() TemplateRepository         { return &templateRepo{db: p.db} }

// Transaction runs fn within a database transaction. Errors that are not
// already apperr values (begin and commit failures) are reported as Storage.
func (p *Postgres) Transaction(ctx context.Context, fn func(tx Gateway) error) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx, sqlDB: p.sqlDB})
	})
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) || errors.Is(err, ErrViewUnavailable) {
		return err
	}
	return apperr.Storage("transaction", err)
}

// Health checks the health of the database connection by pinging the database.
func (p *Postgres) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := p.sqlDB.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := p.sqlDB.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}
	if dbStats.MaxIdleClosed > int64(dbStats.OpenConnections)/2 {
		stats["message"] = "Many idle connections are being closed, consider revising the connection pool settings."
	}
	if dbStats.MaxLifetimeClosed > int64(dbStats.OpenConnections)/2 {
		stats["message"] = "Many connections are being closed due to max lifetime, consider increasing max lifetime or revising the connection usage pattern."
	}

	return stats
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.sqlDB.Close()
}

// translate maps a driver error to an apperr kind. what names the record
// for messages, e.g. "workflow".
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what + " not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Wrap(apperr.KindConflict, what+" already exists", err)
		case pgForeignKeyViolation:
			return apperr.Wrap(apperr.KindNotFound, what+" references a missing record", err)
		}
	}
	return apperr.Storage(what, err)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}
