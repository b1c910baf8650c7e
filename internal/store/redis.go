package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// journalTTL bounds how long an abandoned journal lingers.
const journalTTL = 24 * time.Hour

// removeIfNotNewer deletes a hash field only when the stored record's
// sequence number is at most ARGV[2].
var removeIfNotNewer = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
	return 0
end
local rec = cjson.decode(raw)
if tonumber(rec.seq) <= tonumber(ARGV[2]) then
	return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`)

// RedisJournal stores each session's journal in one Redis hash, one field
// per question.
type RedisJournal struct {
	rdb *redis.Client
}

// NewRedisJournal wraps an established client.
func NewRedisJournal(rdb *redis.Client) *RedisJournal {
	return &RedisJournal{rdb: rdb}
}

var _ Journal = (*RedisJournal)(nil)

func (j *RedisJournal) Put(ctx context.Context, sessionID uuid.UUID, rec model.AnswerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	key := config.CacheKey.SessionJournalKey(sessionID.String())

	pipe := j.rdb.TxPipeline()
	pipe.HSet(ctx, key, rec.QuestionID.String(), data)
	pipe.Expire(ctx, key, journalTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal put: %w", err)
	}
	return nil
}

func (j *RedisJournal) Remove(ctx context.Context, sessionID, questionID uuid.UUID, seq uint64) error {
	key := config.CacheKey.SessionJournalKey(sessionID.String())
	if err := removeIfNotNewer.Run(ctx, j.rdb, []string{key}, questionID.String(), seq).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("journal remove: %w", err)
	}
	return nil
}

func (j *RedisJournal) Load(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error) {
	fields, err := j.rdb.HGetAll(ctx, config.CacheKey.SessionJournalKey(sessionID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}
	out := make([]model.AnswerRecord, 0, len(fields))
	for field, raw := range fields {
		var rec model.AnswerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// A corrupt entry cannot be replayed; skip it.
			continue
		}
		if rec.QuestionID == uuid.Nil {
			rec.QuestionID, _ = uuid.Parse(field)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (j *RedisJournal) Clear(ctx context.Context, sessionID uuid.UUID) error {
	if err := j.rdb.Del(ctx, config.CacheKey.SessionJournalKey(sessionID.String())).Err(); err != nil {
		return fmt.Errorf("journal clear: %w", err)
	}
	return nil
}
