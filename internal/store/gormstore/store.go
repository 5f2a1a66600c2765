// Package gormstore is the gorm-backed reference implementation of every
// narrow store interface the core packages declare (dispatcher.LeadStore,
// telephony.Store, recording.Store, droprate.CallStats,
// scheduler.CampaignLister/CampaignStore/AgentMetricsSource). It follows
// the teacher's plain-gorm, no-associations style
// (internal/callcontext/store.go) and, when a cacher is given, layers a
// go-gorm/caches read-through cache over every read query.
package gormstore

import (
	"fmt"

	"github.com/go-gorm/caches/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rapidaai/dialer/internal/logging"
	"github.com/rapidaai/dialer/internal/store"
)

// Store wraps a *gorm.DB and implements every store-facing narrow
// interface the core packages need.
type Store struct {
	db     *gorm.DB
	logger logging.Logger
}

// Open connects to driver ("postgres" or "sqlite") at dsn, installs the
// query cache plugin, and returns a Store ready for AutoMigrate.
func Open(driver, dsn string, cacher caches.Cacher, logger logging.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}

	if cacher != nil {
		cachesPlugin := &caches.Caches{Conf: &caches.Config{Cacher: cacher}}
		if err := db.Use(cachesPlugin); err != nil {
			return nil, fmt.Errorf("gormstore: install caches plugin: %w", err)
		}
	}

	return &Store{db: db, logger: logger}, nil
}

// AutoMigrate creates/updates every table this store owns. Kept as an
// explicit call (rather than running at Open time) so callers can choose
// to run golang-migrate SQL migrations instead in a production
// deployment; AutoMigrate is the fast path for local/dev.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&store.CampaignRow{}, &store.LeadRow{}, &store.CallTaskRow{},
		&store.CDRRow{}, &store.RecordingRow{},
	)
}

func (s *Store) DB() *gorm.DB { return s.db }
