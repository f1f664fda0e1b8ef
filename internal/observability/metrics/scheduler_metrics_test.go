package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/marketpay/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "forbidden",
			err:  fmt.Errorf("replay: %w", authorization.ErrForbidden),
			want: SchedulerJobReasonForbidden,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "marketpay",
		Environment: "test",
	})

	metrics.AddBatchProcessed("expire_payables", "banners", 3)
	metrics.AddBatchProcessed("expire_payables", "banners", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("expire_payables", "banners"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestTxConflictAndJobCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})

	metrics.IncTxConflict(ConflictSourceWebhook, "subscription")
	metrics.IncTxConflict(ConflictSourceWebhook, "subscription")
	metrics.IncJobRun("cascade_recovery")
	metrics.IncJobError("cascade_recovery", context.DeadlineExceeded)
	metrics.ObserveReconcile("applied", 20*time.Millisecond)

	if got := testutil.ToFloat64(metrics.txConflicts.WithLabelValues(ConflictSourceWebhook, "subscription")); got != 2 {
		t.Fatalf("expected 2 conflicts, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.jobErrors.WithLabelValues("cascade_recovery", SchedulerJobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 job error, got %v", got)
	}
	if count := testutil.CollectAndCount(metrics.reconcileDuration); count != 1 {
		t.Fatalf("expected one reconcile series, got %d", count)
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("x")
	m.IncTxConflict(ConflictSourceRetry, "banner")
	m.ObserveRunLoopLag(-time.Second)
}
