package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"smartparking/backend/services/parking-service/internal/service"
)

// Store caches recent admissions by credential.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

var _ service.ActiveCache = (*Store)(nil)

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(rfid string) string {
	return fmt.Sprintf("parking:admission:%s", rfid)
}

// Save caches admission.
func (s *Store) Save(ctx context.Context, admission service.Admission) error {
	data, err := json.Marshal(admission)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(admission.RFID), data, s.ttl).Err()
}

// Get returns cached admission, nil when absent.
func (s *Store) Get(ctx context.Context, rfid string) (*service.Admission, error) {
	result, err := s.client.Get(ctx, key(rfid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var admission service.Admission
	if err := json.Unmarshal(result, &admission); err != nil {
		return nil, fmt.Errorf("decode admission %s: %w", rfid, err)
	}
	return &admission, nil
}

// Delete removes cached admission.
func (s *Store) Delete(ctx context.Context, rfid string) error {
	return s.client.Del(ctx, key(rfid)).Err()
}
