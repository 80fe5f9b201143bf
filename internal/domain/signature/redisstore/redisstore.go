// Package redisstore implements storage.SignatureStorage on top of
// go-redis, an alternate pluggable SignatureCache backend; no configuration
// setting selects it. One Redis hash per session holds its entries, keyed
// by compositeKey within the hash.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soilSpoon/llmux/internal/domain/signature/storage"
)

const keyPrefix = "llmux:sigcache:"

// Store is a go-redis backed storage.SignatureStorage.
type Store struct {
	client *redis.Client
	ctx    context.Context
}

// New wraps an existing *redis.Client. Close closes that client, whether it
// was passed in here or constructed via Open.
func New(client *redis.Client) *Store {
	return &Store{client: client, ctx: context.Background()}
}

// Open connects to addr (e.g. "localhost:6379") and returns a ready Store.
func Open(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return New(client), nil
}

type wireEntry struct {
	Signature string    `json:"signature"`
	Family    string    `json:"family"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Store) Get(sessionID, compositeKey string) (storage.CacheEntry, bool, error) {
	raw, err := s.client.HGet(s.ctx, keyPrefix+sessionID, compositeKey).Result()
	if errors.Is(err, redis.Nil) {
		return storage.CacheEntry{}, false, nil
	}
	if err != nil {
		return storage.CacheEntry{}, false, err
	}
	var w wireEntry
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return storage.CacheEntry{}, false, err
	}
	return storage.CacheEntry{
		SessionID:    sessionID,
		CompositeKey: compositeKey,
		Signature:    w.Signature,
		Family:       w.Family,
		Timestamp:    w.Timestamp,
	}, true, nil
}

func (s *Store) Set(entry storage.CacheEntry) error {
	raw, err := json.Marshal(wireEntry{Signature: entry.Signature, Family: entry.Family, Timestamp: entry.Timestamp})
	if err != nil {
		return err
	}
	return s.client.HSet(s.ctx, keyPrefix+entry.SessionID, entry.CompositeKey, raw).Err()
}

func (s *Store) Delete(sessionID, compositeKey string) error {
	return s.client.HDel(s.ctx, keyPrefix+sessionID, compositeKey).Err()
}

func (s *Store) ClearSession(sessionID string) error {
	return s.client.Del(s.ctx, keyPrefix+sessionID).Err()
}

func (s *Store) GetSessionEntries(sessionID string) ([]storage.CacheEntry, error) {
	all, err := s.client.HGetAll(s.ctx, keyPrefix+sessionID).Result()
	if err != nil {
		return nil, err
	}
	out := make([]storage.CacheEntry, 0, len(all))
	for compositeKey, raw := range all {
		var w wireEntry
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			continue
		}
		out = append(out, storage.CacheEntry{
			SessionID:    sessionID,
			CompositeKey: compositeKey,
			Signature:    w.Signature,
			Family:       w.Family,
			Timestamp:    w.Timestamp,
		})
	}
	return out, nil
}

func (s *Store) GetSessionEntryCount(sessionID string) (int, error) {
	n, err := s.client.HLen(s.ctx, keyPrefix+sessionID).Result()
	return int(n), err
}

// CleanupExpired scans every session hash and drops entries older than ttl.
// Redis has no secondary index on the embedded timestamp, so this is a
// best-effort full scan; callers should run it on an infrequent sweep
// interval rather than per-request.
func (s *Store) CleanupExpired(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	var cursor uint64
	removed := 0
	for {
		keys, next, err := s.client.Scan(s.ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, err
		}
		for _, key := range keys {
			all, err := s.client.HGetAll(s.ctx, key).Result()
			if err != nil {
				continue
			}
			for field, raw := range all {
				var w wireEntry
				if err := json.Unmarshal([]byte(raw), &w); err != nil {
					continue
				}
				if w.Timestamp.Before(cutoff) {
					if err := s.client.HDel(s.ctx, key, field).Err(); err == nil {
						removed++
					}
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

const recordKeyPrefix = "llmux:sigrecord:"

type wireRecord struct {
	ProjectID string    `json:"projectId"`
	Provider  string    `json:"provider"`
	Endpoint  string    `json:"endpoint"`
	Account   string    `json:"account"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaveRecord implements storage.RecordStorage, keyed by the signature
// string itself.
func (s *Store) SaveRecord(r storage.Record) error {
	raw, err := json.Marshal(wireRecord{
		ProjectID: r.ProjectID,
		Provider:  r.Provider,
		Endpoint:  r.Endpoint,
		Account:   r.Account,
		CreatedAt: r.CreatedAt,
	})
	if err != nil {
		return err
	}
	return s.client.Set(s.ctx, recordKeyPrefix+r.Signature, raw, 0).Err()
}

func (s *Store) GetRecord(signature string) (storage.Record, bool, error) {
	raw, err := s.client.Get(s.ctx, recordKeyPrefix+signature).Result()
	if errors.Is(err, redis.Nil) {
		return storage.Record{}, false, nil
	}
	if err != nil {
		return storage.Record{}, false, err
	}
	var w wireRecord
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return storage.Record{}, false, err
	}
	return storage.Record{
		Signature: signature,
		ProjectID: w.ProjectID,
		Provider:  w.Provider,
		Endpoint:  w.Endpoint,
		Account:   w.Account,
		CreatedAt: w.CreatedAt,
	}, true, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
