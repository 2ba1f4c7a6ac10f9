package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/logoforge/internal/clock"
	"github.com/smallbiznis/logoforge/internal/config"
	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/logoforge/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/logoforge/internal/entitlement/service"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	"github.com/smallbiznis/logoforge/internal/ratelimit"
	"github.com/smallbiznis/logoforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockEntitlementSvc struct {
	entitlementdomain.Service
	mock.Mock
}

func (m *mockEntitlementSvc) ResetFreeAllotments(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type schedulerEnv struct {
	db      *gorm.DB
	clk     *clock.FakeClock
	sched   *Scheduler
	metrics *obsmetrics.SchedulerMetrics
}

func newSchedulerEnv(t *testing.T, locker *ratelimit.Locker) *schedulerEnv {
	t.Helper()
	db := testutil.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC))
	schedMetrics := obsmetrics.NewSchedulerMetrics(prometheus.NewRegistry(), obsmetrics.Config{
		ServiceName: "logoforge",
		Environment: "test",
	})

	entitlementSvc := entitlementservice.NewService(entitlementservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		Credits: config.NewStaticCreditsConfigHolder(config.DefaultCreditsConfig()),
		Repo:    entitlementrepo.Provide(),
	})

	sched, err := New(Params{
		Log:            zap.NewNop(),
		Clock:          clk,
		GenID:          testutil.Node(t),
		EntitlementSvc: entitlementSvc,
		Locker:         locker,
		Metrics:        schedMetrics,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return &schedulerEnv{db: db, clk: clk, sched: sched, metrics: schedMetrics}
}

func (e *schedulerEnv) seed(t *testing.T, userID string, free, purchased int, lastReset time.Time) {
	t.Helper()
	if err := e.db.Create(&entitlementdomain.Entitlement{
		UserID:                   userID,
		FreeGenerationsLeft:      free,
		PurchasedGenerationsLeft: purchased,
		LastFreeReset:            lastReset,
		CreatedAt:                lastReset,
		UpdatedAt:                lastReset,
	}).Error; err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}
}

func (e *schedulerEnv) load(t *testing.T, userID string) entitlementdomain.Entitlement {
	t.Helper()
	var item entitlementdomain.Entitlement
	if err := e.db.Where("user_id = ?", userID).First(&item).Error; err != nil {
		t.Fatalf("load entitlement: %v", err)
	}
	return item
}

func TestResetFreeAllotmentsRestoresStaleUsers(t *testing.T) {
	env := newSchedulerEnv(t, nil)
	now := env.clk.Now()
	env.seed(t, "stale", 0, 3, now.Add(-25*time.Hour))
	env.seed(t, "fresh", 2, 0, now.Add(-2*time.Hour))

	if err := env.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	stale := env.load(t, "stale")
	assert.Equal(t, 10, stale.FreeGenerationsLeft)
	assert.Equal(t, 3, stale.PurchasedGenerationsLeft, "purchased credits are never reset")
	assert.True(t, stale.LastFreeReset.Equal(now), "last reset stamped with now")

	fresh := env.load(t, "fresh")
	assert.Equal(t, 2, fresh.FreeGenerationsLeft)

	assert.Equal(t, float64(1), promtestutil.ToFloat64(env.metrics.JobRunsFor(JobResetFreeAllotments)))
}

func TestResetFreeAllotmentsAfterClockAdvance(t *testing.T) {
	env := newSchedulerEnv(t, nil)
	env.seed(t, "user-1", 1, 0, env.clk.Now())

	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, env.load(t, "user-1").FreeGenerationsLeft)

	env.clk.Advance(24 * time.Hour)
	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Equal(t, 10, env.load(t, "user-1").FreeGenerationsLeft)

	// a second run in the same window is a no-op
	require.NoError(t, env.db.Exec("UPDATE user_entitlements SET free_generations_left = 4 WHERE user_id = ?", "user-1").Error)
	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Equal(t, 4, env.load(t, "user-1").FreeGenerationsLeft)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	env := newSchedulerEnv(t, locker)
	env.seed(t, "stale", 0, 0, env.clk.Now().Add(-48*time.Hour))

	_, ok, err := locker.TryLock(context.Background(), lockKeyPrefix+JobResetFreeAllotments, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Equal(t, 0, env.load(t, "stale").FreeGenerationsLeft)

	mr.Del(lockKeyPrefix + JobResetFreeAllotments)
	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Equal(t, 10, env.load(t, "stale").FreeGenerationsLeft)
	assert.False(t, mr.Exists(lockKeyPrefix+JobResetFreeAllotments), "lock released after run")
}

func TestRunOnceRunsUnlockedWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	env := newSchedulerEnv(t, ratelimit.NewLocker(client))
	env.seed(t, "stale", 1, 0, env.clk.Now().Add(-30*time.Hour))

	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Equal(t, 10, env.load(t, "stale").FreeGenerationsLeft)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(env.metrics.LockFallbacksFor(JobResetFreeAllotments)))
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	registry := prometheus.NewRegistry()
	schedMetrics := obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "logoforge", Environment: "test"})

	s := &Scheduler{
		log:     zap.NewNop(),
		cfg:     Config{JobTimeout: 5 * time.Millisecond}.withDefaults(),
		clock:   clock.New(),
		genID:   testutil.Node(t),
		metrics: schedMetrics,
	}

	err := s.runJob(context.Background(), "timeout_job", func(ctx context.Context, run *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	assert.Equal(t, float64(1), promtestutil.ToFloat64(schedMetrics.JobTimeoutsFor("timeout_job")))
}

func TestRunOnceReturnsJobError(t *testing.T) {
	svc := &mockEntitlementSvc{}
	svc.On("ResetFreeAllotments", mock.Anything).Return(int64(0), errors.New("db down"))

	s, err := New(Params{
		Log:            zap.NewNop(),
		Clock:          clock.New(),
		GenID:          testutil.Node(t),
		EntitlementSvc: svc,
		Metrics:        obsmetrics.NewSchedulerMetrics(prometheus.NewRegistry(), obsmetrics.Config{}),
	})
	require.NoError(t, err)

	err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobResetFreeAllotments)
	svc.AssertExpectations(t)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{LockTTL: time.Second}.withDefaults()
	assert.Equal(t, 5*time.Minute, cfg.RunInterval)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, 30*time.Second, cfg.LockTTL, "lease never shorter than the job timeout")
}
