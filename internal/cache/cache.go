package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fetchStatePrefix = "fetch:"
	lookupPrefix     = "lookup:"
	// lookupTTL bounds how long upstream address-lookup responses are reused.
	lookupTTL = 24 * time.Hour
)

type Cache struct {
	Client *redis.Client
}

func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{Client: client}, nil
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

// FetchState is the per-location outcome of the latest refresh cycle,
// surfaced by the status endpoint. Outcome is one of fresh/empty/failed.
type FetchState struct {
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	Error         string    `json:"error,omitempty"`
	HostReachable *bool     `json:"host_reachable,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// SetFetchState records the outcome of a location's refresh cycle.
func (c *Cache) SetFetchState(ctx context.Context, location string, st FetchState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, fetchStatePrefix+location, data, 0).Err()
}

// AllFetchStates returns the recorded state of every location.
func (c *Cache) AllFetchStates(ctx context.Context) (map[string]FetchState, error) {
	result := make(map[string]FetchState)

	iter := c.Client.Scan(ctx, 0, fetchStatePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := c.Client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var st FetchState
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		result[strings.TrimPrefix(key, fetchStatePrefix)] = st
	}
	return result, iter.Err()
}

// GetLookup and SetLookup implement source.LookupCache for address-lookup
// responses.
func (c *Cache) GetLookup(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.Client.Get(ctx, lookupPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) SetLookup(ctx context.Context, key string, val []byte) {
	c.Client.Set(ctx, lookupPrefix+key, val, lookupTTL)
}
