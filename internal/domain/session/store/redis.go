package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"medialink-client-go/internal/domain/session/model"
	"medialink-client-go/internal/platform/errors"

	"github.com/bytedance/sonic"
)

type redisStore struct {
	client *redis.Client
	prefix string
	key    string
}

// NewRedis constructs a redis-backed credential store for deployments that
// share engine state across processes (set-top fleets behind one box).
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "medialink:snapshot:"
	}
	return &redisStore{
		client: client,
		prefix: prefix,
		key:    cfg.key(),
	}, nil
}

func (s *redisStore) redisKey() string {
	return s.prefix + s.key
}

func (s *redisStore) Load(ctx context.Context) (model.Snapshot, error) {
	raw, err := s.client.Get(ctx, s.redisKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.Snapshot{}, nil
		}
		return model.Snapshot{}, errors.Wrap(errors.KindStorage, "store.load", "read snapshot", err)
	}
	var snap model.Snapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, errors.Wrap(errors.KindStorage, "store.load", "decode snapshot", err)
	}
	return snap, nil
}

func (s *redisStore) write(ctx context.Context, op string, snap model.Snapshot) error {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return errors.Wrap(errors.KindStorage, op, "encode snapshot", err)
	}
	if err := s.client.Set(ctx, s.redisKey(), data, 0).Err(); err != nil {
		return errors.Wrap(errors.KindStorage, op, "write snapshot", err)
	}
	return nil
}

func (s *redisStore) SaveServer(ctx context.Context, server model.ServerConfig) error {
	return s.write(ctx, "store.save_server", model.Snapshot{Server: &server})
}

func (s *redisStore) SaveCredentials(
	ctx context.Context,
	creds model.Credentials,
	profile *model.UserProfile,
) error {
	snap, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if snap.Server == nil {
		return errors.New(errors.KindStorage, "store.save_credentials", "no server config present")
	}
	snap.Credentials = &creds
	snap.Profile = profile
	return s.write(ctx, "store.save_credentials", snap)
}

func (s *redisStore) ClearCredentials(ctx context.Context) error {
	snap, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if snap.Server == nil {
		// Nothing configured; keep the key absent.
		return s.Reset(ctx)
	}
	snap.Credentials = nil
	snap.Profile = nil
	return s.write(ctx, "store.clear_credentials", snap)
}

func (s *redisStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.redisKey()).Err(); err != nil {
		return errors.Wrap(errors.KindStorage, "store.reset", "delete snapshot", err)
	}
	return nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
