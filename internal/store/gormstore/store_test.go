package gormstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rapidaai/dialer/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return &Store{db: gdb}, mock
}

func TestCountCallsInWindowQueriesBothTotalsAndAbandoned(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "cdrs" WHERE campaign_id = $1 AND written_at >= $2`)).
		WithArgs(uint64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(100))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "cdrs" WHERE`)).
		WithArgs(uint64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))

	total, abandoned, err := store.CountCallsInWindow(context.Background(), 1, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count calls: %v", err)
	}
	if total != 100 || abandoned != 8 {
		t.Fatalf("expected total=100 abandoned=8, got total=%d abandoned=%d", total, abandoned)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActiveCampaignsFiltersByStatus(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "status", "pacing_ratio", "drop_sla"}).
		AddRow(1, "spring-sale", "active", 2.0, 5.0)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "campaigns" WHERE status = $1`)).
		WithArgs("active").
		WillReturnRows(rows)

	campaigns, err := store.ActiveCampaigns(context.Background())
	if err != nil {
		t.Fatalf("active campaigns: %v", err)
	}
	if len(campaigns) != 1 || campaigns[0].Name != "spring-sale" {
		t.Fatalf("unexpected campaigns: %+v", campaigns)
	}
	if campaigns[0].Status != domain.CampaignStatusActive {
		t.Fatalf("expected active status, got %s", campaigns[0].Status)
	}
}
