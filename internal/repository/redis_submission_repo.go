package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/incident-outbox/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "outbox:submissions"

// upsertScript stores the record and keeps the first insertion time in the
// order set, so an overwrite does not move the record to the queue tail.
var upsertScript = goredis.NewScript(`
local created = redis.call("ZSCORE", KEYS[2], ARGV[1])
if not created then
  created = ARGV[3]
  redis.call("ZADD", KEYS[2], created, ARGV[1])
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return created
`)

type redisSubmission struct {
	IncidentID string            `json:"incidentId"`
	FormType   string            `json:"formType"`
	Fields     map[string]string `json:"fields"`
	Status     string            `json:"status"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

var _ SubmissionRepository = (*RedisSubmissionRepo)(nil)

// RedisSubmissionRepo keeps records in a hash (key -> JSON) and their
// insertion order in a sorted set scored by creation time in microseconds.
type RedisSubmissionRepo struct {
	client   *goredis.Client
	hashKey  string
	orderKey string
	now      func() time.Time
}

func NewRedisSubmissionRepo(client *goredis.Client, prefix string) (*RedisSubmissionRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}

	return &RedisSubmissionRepo{
		client:   client,
		hashKey:  prefix,
		orderKey: prefix + ":order",
		now:      time.Now,
	}, nil
}

func (r *RedisSubmissionRepo) Upsert(ctx context.Context, s *domain.Submission) error {
	if s == nil {
		return fmt.Errorf("%w: submission is required", domain.ErrValidation)
	}
	s.PrepareForPersist()
	if err := s.Validate(); err != nil {
		return err
	}

	now := r.now().UTC()
	s.UpdatedAt = now

	payload, err := json.Marshal(redisSubmission{
		IncidentID: s.IncidentID,
		FormType:   s.FormType.String(),
		Fields:     s.Fields,
		Status:     s.Status.String(),
		UpdatedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	created, err := upsertScript.Run(ctx, r.client,
		[]string{r.hashKey, r.orderKey},
		s.Key, payload, now.UnixMicro(),
	).Text()
	if err != nil {
		return storageError("upsert", err)
	}

	s.CreatedAt = parseScore(created, now)
	return nil
}

func (r *RedisSubmissionRepo) Get(ctx context.Context, key string) (*domain.Submission, error) {
	raw, err := r.client.HGet(ctx, r.hashKey, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageError("get", err)
	}

	var created time.Time
	score, err := r.client.ZScore(ctx, r.orderKey, key).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, storageError("get", err)
	}
	if err == nil {
		created = time.UnixMicro(int64(score)).UTC()
	}

	return decodeRedisSubmission(key, raw, created)
}

func (r *RedisSubmissionRepo) GetAll(ctx context.Context) ([]domain.Submission, error) {
	ordered, err := r.client.ZRangeWithScores(ctx, r.orderKey, 0, -1).Result()
	if err != nil {
		return nil, storageError("get all", err)
	}
	if len(ordered) == 0 {
		return []domain.Submission{}, nil
	}

	keys := make([]string, 0, len(ordered))
	for _, z := range ordered {
		keys = append(keys, fmt.Sprint(z.Member))
	}

	values, err := r.client.HMGet(ctx, r.hashKey, keys...).Result()
	if err != nil {
		return nil, storageError("get all", err)
	}

	submissions := make([]domain.Submission, 0, len(keys))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Removed between ZRANGE and HMGET.
			continue
		}
		s, err := decodeRedisSubmission(keys[i], raw, time.UnixMicro(int64(ordered[i].Score)).UTC())
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, *s)
	}
	return submissions, nil
}

func (r *RedisSubmissionRepo) Remove(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, r.hashKey, key)
		pipe.ZRem(ctx, r.orderKey, key)
		return nil
	})
	if err != nil {
		return storageError("remove", err)
	}
	return nil
}

func (r *RedisSubmissionRepo) Count(ctx context.Context) (int64, error) {
	total, err := r.client.HLen(ctx, r.hashKey).Result()
	if err != nil {
		return 0, storageError("count", err)
	}
	return total, nil
}

func (r *RedisSubmissionRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return storageError("ping", err)
	}
	return nil
}

func decodeRedisSubmission(key string, raw string, created time.Time) (*domain.Submission, error) {
	var stored redisSubmission
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, storageError("decode", err)
	}
	if stored.Fields == nil {
		stored.Fields = map[string]string{}
	}

	return &domain.Submission{
		Key:        key,
		IncidentID: stored.IncidentID,
		FormType:   domain.FormType(stored.FormType),
		Fields:     stored.Fields,
		Status:     domain.DeliveryStatus(stored.Status),
		CreatedAt:  created,
		UpdatedAt:  stored.UpdatedAt,
	}, nil
}

func parseScore(raw string, fallback time.Time) time.Time {
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return time.UnixMicro(int64(score)).UTC()
}
