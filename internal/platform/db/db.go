package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/models"
	cfgpkg "github.com/qhomebase/contract-renewal/pkg/config"
	gormzap "github.com/qhomebase/contract-renewal/pkg/gormlog"
)

// NowFunc keeps gorm-managed timestamps in UTC with second precision,
// matching the values produced by tool.Clock.
func NowFunc() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func NewDB(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	if cfg.Database.DSN == "" {
		l.Error("database DSN is empty")
		return nil, gorm.ErrInvalidDB
	}
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case cfgpkg.DBDriverSQLite:
		dialector = sqlite.Open(cfg.Database.DSN)
	case cfgpkg.DBDriverPostgres, "":
		dialector = postgres.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormzap.New(l, cfg.Database.SlowThreshold),
		NowFunc: NowFunc,
	})
	if err != nil {
		l.Errorf("failed to connect database: %v", err)
		return nil, err
	}
	if cfg.Database.Driver == cfgpkg.DBDriverSQLite {
		// sqlite serialises writers; a single connection avoids "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	l.Infow("connected to database", "driver", cfg.Database.Driver)
	return db, nil
}

var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(AutoMigrate),
	fx.Invoke(registerDBClose),
)

// Models lists every table owned by this service.
func Models() []any {
	return []any{
		&models.Contract{},
		&models.ContractLog{},
		&models.ReminderDispatch{},
		&models.PaymentIntent{},
		&models.SideEffectTask{},
		&models.JobRun{},
		&models.PaymentNotificationLog{},
	}
}

// AutoMigrate runs GORM migrations on startup
func AutoMigrate(l *zap.SugaredLogger, db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		l.Errorf("automigrate failed: %v", err)
		return err
	}
	l.Infow("automigrate completed")
	return nil
}

// registerDBClose ensures the underlying *sql.DB is closed on shutdown
func registerDBClose(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("gorm: get sql.DB failed", "err", err)
				return nil
			}
			l.Infow("closing database connection pool")
			return sqlDB.Close()
		},
	})
}
