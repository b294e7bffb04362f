package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"wxsync/internal/metrics"
	"wxsync/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Job is the envelope persisted in redis for each unit of work.
type Job struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Options control delivery for one named queue.
type Options struct {
	Attempts int
	Backoff  time.Duration
	MaxDelay time.Duration
}

// Handler processes one job payload. A returned error triggers a delayed
// redelivery until the queue's attempt budget is spent.
type Handler func(ctx context.Context, payload json.RawMessage) error

type registration struct {
	opts    Options
	handler Handler
	policy  RetryPolicy
}

// Manager owns the named queues, their handlers and the worker pool that
// drains them. Jobs are delivered at least once: handlers must tolerate
// duplicates.
type Manager struct {
	redis       *redis.Client
	logger      *zerolog.Logger
	limiter     *rate.Limiter
	concurrency int

	mu            sync.RWMutex
	registrations map[string]registration
	queueKeys     []string

	fallback chan Job
	wg       sync.WaitGroup
}

type ManagerConfig struct {
	Concurrency     int
	RateLimitMax    int
	RateLimitWindow time.Duration
}

func NewManager(redisClient *redis.Client, cfg ManagerConfig, logger *zerolog.Logger) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 5
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = 10 * time.Second
	}

	limit := rate.Every(cfg.RateLimitWindow / time.Duration(cfg.RateLimitMax))
	return &Manager{
		redis:         redisClient,
		logger:        logger,
		limiter:       rate.NewLimiter(limit, cfg.RateLimitMax),
		concurrency:   cfg.Concurrency,
		registrations: make(map[string]registration),
		fallback:      make(chan Job, models.QueueFallbackSize),
	}
}

// Register binds a handler to a named queue. Registration is explicit and
// must happen before Start; there is no global registry.
func (m *Manager) Register(name string, opts Options, handler Handler) error {
	if name == "" {
		return errors.New("queue name is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = time.Minute
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registrations[name]; exists {
		return fmt.Errorf("queue %s already registered", name)
	}
	m.registrations[name] = registration{
		opts:    opts,
		handler: handler,
		policy: RetryPolicy{
			MaxAttempts:   opts.Attempts,
			InitialDelay:  opts.Backoff,
			MaxDelay:      opts.MaxDelay,
			BackoffFactor: 2,
		},
	}
	m.queueKeys = append(m.queueKeys, queueKey(name))
	return nil
}

// Enqueue schedules a payload on a registered queue. Redis is preferred for
// durability; the in-memory channel takes over when redis is unreachable.
func (m *Manager) Enqueue(ctx context.Context, queue string, payload interface{}) error {
	m.mu.RLock()
	_, registered := m.registrations[queue]
	m.mu.RUnlock()
	if !registered {
		return fmt.Errorf("queue %s is not registered", queue)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	job := Job{
		ID:        uuid.NewString(),
		Queue:     queue,
		Payload:   data,
		Attempt:   0,
		CreatedAt: time.Now(),
	}

	if m.redis != nil {
		if err := m.pushRedis(ctx, job); err != nil {
			m.logger.Warn().Err(err).Str("queue", queue).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case m.fallback <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: fallback queue full", queue)
	}
}

// Start launches the worker pool and the delayed-job promoter, and blocks
// until ctx is done and all workers have drained.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info().Int("concurrency", m.concurrency).Msg("queue manager started")
	defer m.logger.Info().Msg("queue manager stopped")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.promoteLoop(ctx)
	}()

	for i := 0; i < m.concurrency; i++ {
		m.wg.Add(1)
		go func(worker int) {
			defer m.wg.Done()
			m.workLoop(ctx, worker)
		}(i)
	}

	m.wg.Wait()
}

func (m *Manager) workLoop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return
		}

		job, ok := m.nextJob(ctx)
		if !ok {
			continue
		}
		m.process(ctx, worker, job)
	}
}

func (m *Manager) nextJob(ctx context.Context) (Job, bool) {
	select {
	case job := <-m.fallback:
		return job, true
	default:
	}

	if m.redis == nil {
		select {
		case job := <-m.fallback:
			return job, true
		case <-ctx.Done():
			return Job{}, false
		case <-time.After(time.Second):
			return Job{}, false
		}
	}

	m.mu.RLock()
	keys := append([]string(nil), m.queueKeys...)
	m.mu.RUnlock()
	if len(keys) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return Job{}, false
	}

	res, err := m.redis.BRPop(ctx, time.Second, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Job{}, false
		}
		m.logger.Error().Err(err).Msg("redis BRPOP error")
		return Job{}, false
	}
	if len(res) != 2 {
		return Job{}, false
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		m.logger.Error().Err(err).Msg("decode job")
		return Job{}, false
	}
	return job, true
}

func (m *Manager) process(ctx context.Context, worker int, job Job) {
	m.mu.RLock()
	reg, ok := m.registrations[job.Queue]
	m.mu.RUnlock()
	if !ok {
		m.logger.Error().Str("queue", job.Queue).Str("job_id", job.ID).Msg("job for unregistered queue dropped")
		return
	}

	logger := m.logger.With().
		Int("worker", worker).
		Str("queue", job.Queue).
		Str("job_id", job.ID).
		Int("attempt", job.Attempt+1).
		Logger()

	start := time.Now()
	err := reg.handler(ctx, job.Payload)
	if err == nil {
		logger.Debug().Dur("duration", time.Since(start)).Msg("job completed")
		return
	}

	job.Attempt++
	if job.Attempt >= reg.opts.Attempts {
		logger.Error().Err(err).Msg("job exhausted attempts, moving to dead letter")
		m.pushDeadLetter(ctx, job, err)
		return
	}

	delay := reg.policy.NextDelay(job.Attempt)
	logger.Warn().Err(err).Dur("retry_in", delay).Msg("job failed, scheduling retry")
	m.scheduleRetry(ctx, job, delay)
}

// promoteLoop moves due delayed jobs back onto their queues.
func (m *Manager) promoteLoop(ctx context.Context) {
	if m.redis == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.promoteDue(ctx)
		}
	}
}

func (m *Manager) promoteDue(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.registrations))
	for name := range m.registrations {
		names = append(names, name)
	}
	m.mu.RUnlock()

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for _, name := range names {
		if depth, err := m.redis.LLen(ctx, queueKey(name)).Result(); err == nil {
			metrics.SetQueueDepth(name, depth)
		}

		entries, err := m.redis.ZRangeByScore(ctx, delayedKey(name), &redis.ZRangeBy{
			Min: "-inf", Max: now,
		}).Result()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				m.logger.Error().Err(err).Str("queue", name).Msg("delayed scan error")
			}
			continue
		}

		for _, entry := range entries {
			removed, err := m.redis.ZRem(ctx, delayedKey(name), entry).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := m.redis.LPush(ctx, queueKey(name), entry).Err(); err != nil {
				m.logger.Error().Err(err).Str("queue", name).Msg("promote delayed job failed")
			}
		}
	}
}

func (m *Manager) scheduleRetry(ctx context.Context, job Job, delay time.Duration) {
	data, err := json.Marshal(job)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("encode retry job")
		return
	}

	if m.redis != nil {
		err := m.redis.ZAdd(ctx, delayedKey(job.Queue), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: string(data),
		}).Err()
		if err == nil {
			return
		}
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("redis retry schedule failed, using in-process timer")
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			select {
			case m.fallback <- job:
			default:
				m.logger.Error().Str("job_id", job.ID).Msg("fallback queue full, retry dropped")
			}
		}
	}()
}

func (m *Manager) pushRedis(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return m.redis.LPush(ctx, queueKey(job.Queue), data).Err()
}

func (m *Manager) pushDeadLetter(ctx context.Context, job Job, cause error) {
	if m.redis == nil {
		return
	}
	envelope := struct {
		Job
		Error    string    `json:"error"`
		FailedAt time.Time `json:"failed_at"`
	}{Job: job, Error: cause.Error(), FailedAt: time.Now()}

	data, err := json.Marshal(envelope)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("encode deadletter")
		return
	}
	if err := m.redis.LPush(ctx, deadLetterKey(job.Queue), data).Err(); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("deadletter push failed")
	}
}

func queueKey(name string) string      { return "queue:" + name }
func delayedKey(name string) string    { return "queue:" + name + ":delayed" }
func deadLetterKey(name string) string { return "queue:" + name + ":deadletter" }
