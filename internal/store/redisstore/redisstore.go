package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/gopherchat-bot/internal/session"
)

const keyPrefix = "gopherchat:session:"

// Store persists sessions as JSON values with a sliding TTL.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Connect dials Redis and pings it once.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(cctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func key(k int64) string {
	return keyPrefix + strconv.FormatInt(k, 10)
}

func (s *Store) Load(ctx context.Context, k int64) (*session.Session, error) {
	raw, err := s.rdb.Get(ctx, key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &session.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// unreadable state is reset rather than wedging the conversation
		return &session.Session{}, nil
	}
	return &sess, nil
}

func (s *Store) Save(ctx context.Context, k int64, sess *session.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key(k), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
