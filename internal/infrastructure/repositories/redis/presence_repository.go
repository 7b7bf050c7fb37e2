package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"campuschat/internal/core/domain"
	"campuschat/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const presenceHashKey = "campuschat:presence"

// RedisPresenceRepository keeps Identity Records in a single hash so the
// online-users endpoint can be served from any process sharing the Redis
// instance. The registry remains the only writer.
type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) ports.PresenceRepository {
	return &RedisPresenceRepository{client: client}
}

func (r *RedisPresenceRepository) Put(ctx context.Context, record domain.IdentityRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal identity record: %w", err)
	}

	if err := r.client.HSet(ctx, presenceHashKey, string(record.ID), data).Err(); err != nil {
		return fmt.Errorf("failed to store identity record: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) Remove(ctx context.Context, id domain.Identity) error {
	removed, err := r.client.HDel(ctx, presenceHashKey, string(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove identity record: %w", err)
	}
	if removed == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

func (r *RedisPresenceRepository) List(ctx context.Context) ([]domain.IdentityRecord, error) {
	raw, err := r.client.HGetAll(ctx, presenceHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list identity records: %w", err)
	}

	records := make([]domain.IdentityRecord, 0, len(raw))
	for _, data := range raw {
		var rec domain.IdentityRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}
