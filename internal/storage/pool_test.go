//go:build integration

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sungwon/wa-commerce/internal/metrics"
	"github.com/sungwon/wa-commerce/internal/storage"
)

func TestNewDB_Errors(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{"unparseable url", "postgres://%zz"},
		{"unreachable server", "postgres://wa:wa@127.0.0.1:1/wa?sslmode=disable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := storage.NewDB(t.Context(), tt.dsn, 1, 2, time.Second)
			if err == nil {
				db.Close()
				t.Fatal("expected NewDB to fail")
			}
		})
	}
}

func TestMigrate_RerunIsNoop(t *testing.T) {
	if err := storage.Migrate(sharedDSN); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestDB_ClosingOnePoolLeavesOthers(t *testing.T) {
	db, err := storage.NewDB(t.Context(), sharedDSN, 1, 2, 10*time.Second)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	db.Close()

	if err := db.Ping(t.Context()); err == nil {
		t.Error("Ping() on closed pool succeeded")
	}
	if err := sharedDB.Ping(t.Context()); err != nil {
		t.Fatalf("shared pool Ping() error = %v", err)
	}
}

func TestDB_ReportStats(t *testing.T) {
	db, err := storage.NewDB(t.Context(), sharedDSN, 2, 4, 10*time.Second)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	defer db.Close()

	metrics.DBConnectionsIdle.Set(-1)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		db.ReportStats(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(metrics.DBConnectionsIdle) < 0 {
		if time.Now().After(deadline) {
			t.Fatal("pool gauges were not published")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if got := testutil.ToFloat64(metrics.DBConnectionsActive); got < 0 {
		t.Errorf("active connections = %v", got)
	}
}
