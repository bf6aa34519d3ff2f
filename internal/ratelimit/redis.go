package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telemed/dr-ai-service/pkg/logging"
)

// slidingWindowScript runs the expire-count-insert sequence atomically on
// the Redis side, so two near-simultaneous requests for the same key can
// never both observe capacity and both be admitted past the limit.
//
// KEYS[1] window zset; ARGV: now(ms), window(ms), limit, ttl(s), member.
// Returns {1, 0} on admit, {0, retry_ms} on reject.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = window - (now - tonumber(oldest[2]))
  end
  return {0, retry}
end

redis.call('ZADD', key, now, ARGV[5])
redis.call('EXPIRE', key, ttl)
return {1, 0}
`)

// RedisLimiter is the shared-store implementation for multi-process
// deployments. It fails open when Redis is unreachable: an infrastructure
// outage must degrade the limiter, not the answering pipeline.
type RedisLimiter struct {
	client *redis.Client
	limits Limits
	logger *logging.Logger
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed sliding-window limiter.
func NewRedisLimiter(client *redis.Client, limits Limits, logger *logging.Logger) *RedisLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLimiter{client: client, limits: limits, logger: logger, now: time.Now}
}

// Allow evaluates the patient window and the IP window; the request is
// admitted only if both have capacity.
func (l *RedisLimiter) Allow(ctx context.Context, req Request) (Decision, error) {
	now := l.now()

	pOK, pRetry, err := l.checkAndInsert(ctx, patientKey(req.PatientID), now, l.limits.PerMinuteByPatient)
	if err != nil {
		l.logger.Warn("rate limit check unavailable, failing open", "scope", ScopePatient, "error", err)
		return Decision{OK: true}, nil
	}
	iOK, iRetry, err := l.checkAndInsert(ctx, ipKey(req.IP), now, l.limits.PerMinuteByIP)
	if err != nil {
		l.logger.Warn("rate limit check unavailable, failing open", "scope", ScopeIP, "error", err)
		return Decision{OK: true}, nil
	}

	if pOK && iOK {
		return Decision{OK: true}, nil
	}

	d := Decision{OK: false}
	if !pOK {
		d.Scope = ScopePatient
		d.RetryAfter = pRetry
	}
	if !iOK && iRetry > d.RetryAfter {
		d.Scope = ScopeIP
		d.RetryAfter = iRetry
	}
	return d, nil
}

func (l *RedisLimiter) checkAndInsert(ctx context.Context, key string, now time.Time, limit int) (bool, time.Duration, error) {
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{key},
		now.UnixMilli(),
		Window.Milliseconds(),
		limit,
		int(KeyTTL.Seconds()),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}

	if len(res) == 2 && res[0] == 1 {
		return true, 0, nil
	}
	retry := time.Duration(res[1]) * time.Millisecond
	return false, retry, nil
}
