package cmd

import (
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/audit"
	auditpostgres "github.com/frahmantamala/payment-gate/internal/audit/postgres"
	"github.com/frahmantamala/payment-gate/internal/payment"
	paymentpostgres "github.com/frahmantamala/payment-gate/internal/payment/postgres"
)

// stores bundles the handles every command needs. gorm and sqlx share one
// connection pool.
type stores struct {
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Payments payment.Store
	Audit    audit.Store
}

func (s *stores) Close() error {
	return s.DB.Close()
}

func openStores(cfg internal.DatabaseConfig, logger *slog.Logger) (*stores, error) {
	db, err := initDB(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(slog.NewLogLogger(logger.Handler(), slog.LevelWarn), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	return &stores{
		DB:       db,
		Gorm:     gdb,
		Payments: paymentpostgres.New(gdb),
		Audit:    auditpostgres.New(db),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
