package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

// ErrNoStatus is returned when no status has been mirrored for an instance.
var ErrNoStatus = errors.New("no status recorded")

// Client mirrors snapshotter status into Redis so other tools can read it.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, ttl: 24 * time.Hour}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func statusKey(instanceID string) string {
	return fmt.Sprintf("snapshotter:%s:status", instanceID)
}

func lastSubmissionKey(instanceID string) string {
	return fmt.Sprintf("snapshotter:%s:last_submission", instanceID)
}

func epochKey(instanceID string) string {
	return fmt.Sprintf("snapshotter:%s:latest_epoch", instanceID)
}

// SaveStatus stores the status counters as JSON.
func (c *Client) SaveStatus(ctx context.Context, instanceID string, status domain.SnapshotterStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := c.rdb.Set(ctx, statusKey(instanceID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set status failed: %w", err)
	}
	return nil
}

// GetStatus loads the mirrored status counters.
func (c *Client) GetStatus(ctx context.Context, instanceID string) (*domain.SnapshotterStatus, error) {
	data, err := c.rdb.Get(ctx, statusKey(instanceID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoStatus
	}
	if err != nil {
		return nil, fmt.Errorf("get status failed: %w", err)
	}
	var status domain.SnapshotterStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

// SetLastSubmission records the unix time of the latest successful submission.
func (c *Client) SetLastSubmission(ctx context.Context, instanceID string, at time.Time) error {
	return c.rdb.Set(ctx, lastSubmissionKey(instanceID), strconv.FormatInt(at.Unix(), 10), c.ttl).Err()
}

// GetLastSubmission returns the zero time when nothing was recorded.
func (c *Client) GetLastSubmission(ctx context.Context, instanceID string) (time.Time, error) {
	val, err := c.rdb.Get(ctx, lastSubmissionKey(instanceID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get failed: %w", err)
	}
	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", val, err)
	}
	return time.Unix(sec, 0), nil
}

// SetLatestEpoch records the highest epoch id seen by the detector.
func (c *Client) SetLatestEpoch(ctx context.Context, instanceID string, epochID uint64) error {
	return c.rdb.Set(ctx, epochKey(instanceID), strconv.FormatUint(epochID, 10), c.ttl).Err()
}

// GetLatestEpoch returns 0 when nothing was recorded.
func (c *Client) GetLatestEpoch(ctx context.Context, instanceID string) (uint64, error) {
	val, err := c.rdb.Get(ctx, epochKey(instanceID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get failed: %w", err)
	}
	return strconv.ParseUint(val, 10, 64)
}
