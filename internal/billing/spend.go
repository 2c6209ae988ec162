package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"trailblazer_ai/internal/utils"
)

// GlobalScope is the spend scope covering every call.
const GlobalScope = "global"

// UserScope returns the spend scope of one user.
func UserScope(userID string) string {
	return "user:" + userID
}

// SpendService keeps running spend totals shared across replicas.
type SpendService interface {
	AddSpend(ctx context.Context, scope string, cost decimal.Decimal, at time.Time) error
	MonthlySpend(ctx context.Context, scope string, at time.Time) (decimal.Decimal, error)
	DailySpend(ctx context.Context, scope string, at time.Time) (decimal.Decimal, error)
}

// WithinBudget reports whether scope is under both limits. Errors allow the request.
func WithinBudget(ctx context.Context, s SpendService, scope string, limits BudgetLimits, now time.Time) bool {
	if limits.MonthlyLimitUSD.IsPositive() {
		spent, err := s.MonthlySpend(ctx, scope, now)
		if err == nil && spent.GreaterThanOrEqual(limits.MonthlyLimitUSD) {
			return false
		}
	}
	if limits.DailyLimitUSD.IsPositive() {
		spent, err := s.DailySpend(ctx, scope, now)
		if err == nil && spent.GreaterThanOrEqual(limits.DailyLimitUSD) {
			return false
		}
	}
	return true
}

// NoopSpendService discards spend.
type NoopSpendService struct{}

func NewNoopSpendService() *NoopSpendService {
	return &NoopSpendService{}
}

func (s *NoopSpendService) AddSpend(ctx context.Context, scope string, cost decimal.Decimal, at time.Time) error {
	return nil
}

func (s *NoopSpendService) MonthlySpend(ctx context.Context, scope string, at time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *NoopSpendService) DailySpend(ctx context.Context, scope string, at time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// TrackerSpendService reads spend from the in-process tracker. Used when no
// Redis counters are shared between replicas.
type TrackerSpendService struct {
	tracker *Tracker
}

func NewTrackerSpendService(t *Tracker) *TrackerSpendService {
	return &TrackerSpendService{tracker: t}
}

// AddSpend is a no-op: the tracker already holds every recorded event.
func (s *TrackerSpendService) AddSpend(ctx context.Context, scope string, cost decimal.Decimal, at time.Time) error {
	return nil
}

func (s *TrackerSpendService) MonthlySpend(ctx context.Context, scope string, at time.Time) (decimal.Decimal, error) {
	return s.sum(scope, WindowMonth, at), nil
}

func (s *TrackerSpendService) DailySpend(ctx context.Context, scope string, at time.Time) (decimal.Decimal, error) {
	return s.sum(scope, WindowToday, at), nil
}

func (s *TrackerSpendService) sum(scope string, w Window, at time.Time) decimal.Decimal {
	since := w.Start(at)
	total := decimal.Zero
	for _, ev := range s.tracker.Events(WindowAll) {
		if ev.Timestamp.Before(since) {
			continue
		}
		if scope != GlobalScope && UserScope(ev.UserID) != scope {
			continue
		}
		total = total.Add(ev.Cost)
	}
	return total
}

// monthly counters live ~2 months, daily ones ~2 days
const (
	monthlyTTL = 60 * 24 * time.Hour
	dailyTTL   = 48 * time.Hour
)

// both counters are bumped atomically
var addSpendScript = redis.NewScript(`
	local monthly = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
	redis.call('INCRBYFLOAT', KEYS[2], ARGV[1])
	redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
	return monthly
`)

// RedisSpendService tracks spend in Redis counters
type RedisSpendService struct {
	redis  *redis.Client
	prefix string
}

// NewRedisSpendService creates a Redis spend service
func NewRedisSpendService(client *redis.Client) *RedisSpendService {
	return &RedisSpendService{redis: client, prefix: "trailblazer:spend"}
}

// AddSpend adds cost to the month and day counters of scope
func (s *RedisSpendService) AddSpend(ctx context.Context, scope string, cost decimal.Decimal, at time.Time) error {
	if cost.IsZero() {
		return nil
	}
	if scope == "" {
		return utils.Permanent(eris.New("spend update has no scope"))
	}
	keys := []string{s.monthlyKey(scope, at), s.dailyKey(scope, at)}
	err := addSpendScript.Run(ctx, s.redis, keys,
		cost.String(), int(monthlyTTL.Seconds()), int(dailyTTL.Seconds())).Err()
	if err != nil {
		return eris.Wrapf(err, "failed to add spend for %s", scope)
	}
	return nil
}

// MonthlySpend returns the month's total for scope
func (s *RedisSpendService) MonthlySpend(ctx context.Context, scope string, at time.Time) (decimal.Decimal, error) {
	return s.get(ctx, s.monthlyKey(scope, at))
}

// DailySpend returns the day's total for scope
func (s *RedisSpendService) DailySpend(ctx context.Context, scope string, at time.Time) (decimal.Decimal, error) {
	return s.get(ctx, s.dailyKey(scope, at))
}

// ResetMonthlySpend clears the month's counter (admin use)
func (s *RedisSpendService) ResetMonthlySpend(ctx context.Context, scope string, at time.Time) error {
	return s.redis.Del(ctx, s.monthlyKey(scope, at)).Err()
}

func (s *RedisSpendService) get(ctx context.Context, key string) (decimal.Decimal, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "failed to read %s", key)
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "corrupt spend counter %s", key)
	}
	return d, nil
}

func (s *RedisSpendService) monthlyKey(scope string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s:%s:%d:%02d", s.prefix, scope, at.Year(), int(at.Month()))
}

func (s *RedisSpendService) dailyKey(scope string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s:%s:%d:%02d:%02d", s.prefix, scope, at.Year(), int(at.Month()), at.Day())
}
