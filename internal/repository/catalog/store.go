// Package catalog provides the RediSearch-backed material catalog store.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Config holds connection parameters for the catalog store.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	KeyPrefix  string
	Dimensions int
	OpTimeout  time.Duration
}

// Store queries material hashes through FT.SEARCH.
type Store struct {
	client     rueidis.Client
	keyPrefix  string
	dimensions int
	opTimeout  time.Duration
}

// NewStore creates a catalog store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}

	return &Store{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		dimensions: cfg.Dimensions,
		opTimeout:  opTimeout,
	}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// Client exposes the underlying client so sibling repositories can share
// the connection pool.
func (s *Store) Client() rueidis.Client {
	return s.client
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for catalog store: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Store) indexName() string {
	return s.keyPrefix + "materials_idx"
}

func (s *Store) materialKey(id string) string {
	return s.keyPrefix + "material:" + id
}

// do runs a command under the configured per-operation timeout, so a
// wedged store fails the call instead of hanging the request.
func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}
