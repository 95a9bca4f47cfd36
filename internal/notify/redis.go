package notify

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/metrics"
)

// Redis transport defaults.
const (
	DefaultChannel   = "indexgen:systemmetadata"
	DefaultPathKey   = "indexgen:objectpath"
	DefaultWorkers   = 4
	DefaultDedupSize = 10000
)

// RedisConfig configures the Redis pub/sub transport.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Channel is the pub/sub channel carrying JSON Events.
	Channel string

	// Workers is the number of handler goroutines. Events for the same
	// identifier always go to the same worker.
	Workers int

	// DedupSize bounds the set of recently seen event IDs.
	DedupSize int
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c RedisConfig) WithDefaults() RedisConfig {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.DedupSize <= 0 {
		c.DedupSize = DefaultDedupSize
	}
	return c
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ierrors.ConfigError("redis address is empty", nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, ierrors.New(ierrors.ErrCodeNotifyUnavailable, "cannot reach redis", err).
			WithDetail("addr", cfg.Addr)
	}
	return client, nil
}

// RedisSource consumes Events from a Redis channel and hands them to a Handler.
type RedisSource struct {
	client  *redis.Client
	cfg     RedisConfig
	handler Handler
	seen    *lru.Cache[string, struct{}]
	metrics *metrics.Metrics
}

// NewRedisSource creates a source reading cfg.Channel.
func NewRedisSource(client *redis.Client, cfg RedisConfig, h Handler, m *metrics.Metrics) (*RedisSource, error) {
	cfg = cfg.WithDefaults()
	seen, err := lru.New[string, struct{}](cfg.DedupSize)
	if err != nil {
		return nil, ierrors.ConfigError("invalid dedup cache size", err)
	}
	return &RedisSource{client: client, cfg: cfg, handler: h, seen: seen, metrics: m}, nil
}

// Run subscribes and dispatches until ctx is cancelled. Events already
// handed to a worker run to completion after cancellation.
func (s *RedisSource) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.cfg.Channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return ierrors.New(ierrors.ErrCodeNotifyUnavailable, "cannot subscribe to channel", err).
			WithDetail("channel", s.cfg.Channel)
	}
	slog.Info("subscribed to notification channel",
		slog.String("channel", s.cfg.Channel),
		slog.Int("workers", s.cfg.Workers))

	queues := make([]chan Event, s.cfg.Workers)
	g := new(errgroup.Group)
	for i := range queues {
		q := make(chan Event, 64)
		queues[i] = q
		g.Go(func() error {
			for ev := range q {
				s.handle(context.WithoutCancel(ctx), ev)
			}
			return nil
		})
	}

	err := s.pump(ctx, sub.Channel(), queues)
	for _, q := range queues {
		close(q)
	}
	_ = g.Wait()
	return err
}

func (s *RedisSource) pump(ctx context.Context, msgs <-chan *redis.Message, queues []chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ierrors.New(ierrors.ErrCodeNotifyUnavailable, "subscription closed", nil)
			}
			ev, shard, ok := s.route(msg.Payload)
			if !ok {
				continue
			}
			select {
			case queues[shard] <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// route decodes a payload and picks its worker. It returns false for
// malformed payloads and event IDs that were already handled successfully.
func (s *RedisSource) route(payload string) (Event, int, bool) {
	ev, err := DecodeEvent([]byte(payload))
	if err != nil {
		slog.Warn("dropping malformed event", ierrors.LogAttrs(err)...)
		s.metrics.Notification("unknown", metrics.OutcomeFailed)
		return Event{}, 0, false
	}
	if ev.ID != "" {
		if s.duplicate(ev) {
			return Event{}, 0, false
		}
	}
	return ev, shardFor(ev.Snapshot.Identifier, s.cfg.Workers), true
}

func (s *RedisSource) duplicate(ev Event) bool {
	if ev.ID == "" || !s.seen.Contains(ev.ID) {
		return false
	}
	slog.Debug("duplicate event dropped",
		slog.String("id", ev.ID),
		slog.String("pid", ev.Snapshot.Identifier))
	s.metrics.Notification(string(ev.Kind), metrics.OutcomeReplay)
	return true
}

// handle dispatches ev. The event ID is remembered only once dispatch
// succeeds, so a redelivery after a failure is handled again. Events for one
// identifier share a worker, so a copy queued behind the original is caught
// by the second check.
func (s *RedisSource) handle(ctx context.Context, ev Event) {
	if s.duplicate(ev) {
		return
	}
	if err := ev.Dispatch(ctx, s.handler); err != nil {
		attrs := append([]any{
			slog.String("pid", ev.Snapshot.Identifier),
			slog.String("kind", string(ev.Kind)),
		}, ierrors.LogAttrs(err)...)
		slog.Error("event handling failed", attrs...)
		return
	}
	if ev.ID != "" {
		s.seen.Add(ev.ID, struct{}{})
	}
}

func shardFor(pid string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pid))
	return int(h.Sum32() % uint32(n))
}

// Publish sends ev on channel.
func Publish(ctx context.Context, client *redis.Client, channel string, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return ierrors.InternalError("cannot encode event", err)
	}
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return ierrors.New(ierrors.ErrCodeNotifyUnavailable, "cannot publish event", err).
			WithDetail("channel", channel)
	}
	return nil
}

// RedisPathResolver looks object paths up in a Redis hash keyed by identifier.
type RedisPathResolver struct {
	client *redis.Client
	key    string
}

// NewRedisPathResolver reads paths from the hash at key.
func NewRedisPathResolver(client *redis.Client, key string) *RedisPathResolver {
	if key == "" {
		key = DefaultPathKey
	}
	return &RedisPathResolver{client: client, key: key}
}

// Resolve returns the stored path, or "" when the hash has no entry.
func (r *RedisPathResolver) Resolve(ctx context.Context, pid string) (string, error) {
	p, err := r.client.HGet(ctx, r.key, pid).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", ierrors.New(ierrors.ErrCodeNotifyUnavailable, "cannot resolve object path", err).
			WithDetail("pid", pid)
	}
	return p, nil
}

// Register stores the path for pid.
func (r *RedisPathResolver) Register(ctx context.Context, pid, objectPath string) error {
	if err := r.client.HSet(ctx, r.key, pid, objectPath).Err(); err != nil {
		return ierrors.New(ierrors.ErrCodeNotifyUnavailable, "cannot register object path", err).
			WithDetail("pid", pid)
	}
	return nil
}
