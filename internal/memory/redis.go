package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/mosaic/config"
)

// RedisStore keeps student memory in Redis: the profile as a JSON
// string under student:{id}:profile, and the event log as a JSON list
// under student:{id}:events.
type RedisStore struct {
	client *redis.Client
}

// Connect opens and pings a Redis client from config.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func profileKey(studentID string) string { return "student:" + studentID + ":profile" }
func eventsKey(studentID string) string  { return "student:" + studentID + ":events" }

func (r *RedisStore) Profile(ctx context.Context, studentID string) (StudentProfile, error) {
	raw, err := r.client.Get(ctx, profileKey(studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return StudentProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return StudentProfile{}, fmt.Errorf("get profile: %w", err)
	}
	var p StudentProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return StudentProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.StudentID == "" {
		p.StudentID = studentID
	}
	return p, nil
}

func (r *RedisStore) SaveProfile(ctx context.Context, profile StudentProfile) error {
	b, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := r.client.Set(ctx, profileKey(profile.StudentID), b, 0).Err(); err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}

func (r *RedisStore) AppendEvent(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.RPush(ctx, eventsKey(event.StudentID), b).Err(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit most recent events, oldest first.
func (r *RedisStore) RecentEvents(ctx context.Context, studentID string, limit int) ([]Event, error) {
	start := int64(-limit)
	if limit <= 0 {
		start = 0
	}
	raws, err := r.client.LRange(ctx, eventsKey(studentID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return decodeEvents(raws)
}

// ConceptEvents returns all events of one kind for one concept, oldest
// first. Per-student logs stay small enough to filter client-side.
func (r *RedisStore) ConceptEvents(ctx context.Context, studentID, concept, kind string) ([]Event, error) {
	raws, err := r.client.LRange(ctx, eventsKey(studentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	events, err := decodeEvents(raws)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		if e.Kind == kind && e.Concept == concept {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodeEvents(raws []string) ([]Event, error) {
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// Skip records that older builds wrote in a different
			// shape rather than failing the whole read.
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
