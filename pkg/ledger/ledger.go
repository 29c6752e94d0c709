package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/snapfetch/pkg/batch"
)

var (
	// ErrNoRuns indicates no run has been recorded yet.
	ErrNoRuns = errors.New("no runs recorded")

	// ErrUnknownTask indicates no state exists for a task.
	ErrUnknownTask = errors.New("unknown task")
)

// DefaultHistory is the number of runs kept in the history list.
const DefaultHistory = 100

// Ledger records batch outcomes in Redis. It implements batch.Recorder.
type Ledger struct {
	redis   *redis.Client
	history int64
	now     func() time.Time
}

var _ batch.Recorder = (*Ledger)(nil)

// New creates a ledger on the given Redis client.
func New(redisClient *redis.Client) *Ledger {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Ledger{
		redis:   redisClient,
		history: DefaultHistory,
		now:     time.Now,
	}
}

// SetHistory sets how many runs the history list keeps.
func (l *Ledger) SetHistory(n int) {
	if n > 0 {
		l.history = int64(n)
	}
}

// Connect opens a Redis client from a redis:// URL or a bare host:port and
// verifies it with PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RecordTask stores the outcome of one task.
func (l *Ledger) RecordTask(ctx context.Context, o batch.Outcome) error {
	key := TaskKey{Identifier: o.Task.Identifier, Suffix: o.Task.Suffix}.String()

	fields := map[string]interface{}{
		fieldIdentifier:    o.Task.Identifier,
		fieldSuffix:        o.Task.Suffix,
		fieldLastAttemptAt: l.now().UTC().Format(time.RFC3339Nano),
		fieldLastURL:       o.URL,
	}
	if o.OK() {
		fields[fieldLastStatus] = TaskStatusSuccess
		fields[fieldLastSuccessDate] = o.Task.Date
		fields[fieldLastError] = ""
	} else {
		fields[fieldLastStatus] = TaskStatusFailed
		fields[fieldLastError] = o.Err.Error()
	}

	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.HIncrBy(ctx, key, fieldRequests, int64(o.Requests))
		return nil
	})
	if err != nil {
		LedgerErrors.WithLabelValues("record_task").Inc()
		return fmt.Errorf("record task %s: %w", key, err)
	}

	LedgerWrites.WithLabelValues("task").Inc()
	return nil
}

// RecordRun stores a finished run as the latest run and in the history list.
func (l *Ledger) RecordRun(ctx context.Context, run batch.Run) error {
	data, err := json.Marshal(NewRunRecord(run))
	if err != nil {
		LedgerErrors.WithLabelValues("record_run").Inc()
		return fmt.Errorf("marshal run record: %w", err)
	}

	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, KeyRunLatest, data, 0)
		pipe.LPush(ctx, KeyRunHistory, data)
		pipe.LTrim(ctx, KeyRunHistory, 0, l.history-1)
		return nil
	})
	if err != nil {
		LedgerErrors.WithLabelValues("record_run").Inc()
		return fmt.Errorf("record run: %w", err)
	}

	LedgerWrites.WithLabelValues("run").Inc()
	return nil
}

// LastRun returns the most recent run. Returns ErrNoRuns if none exists.
func (l *Ledger) LastRun(ctx context.Context) (*RunRecord, error) {
	data, err := l.redis.Get(ctx, KeyRunLatest).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoRuns
		}
		LedgerErrors.WithLabelValues("last_run").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		LedgerErrors.WithLabelValues("last_run").Inc()
		return nil, fmt.Errorf("decode run record: %w", err)
	}
	return &rec, nil
}

// Runs returns up to n recorded runs, newest first.
func (l *Ledger) Runs(ctx context.Context, n int) ([]RunRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	items, err := l.redis.LRange(ctx, KeyRunHistory, 0, int64(n-1)).Result()
	if err != nil {
		LedgerErrors.WithLabelValues("runs").Inc()
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	runs := make([]RunRecord, 0, len(items))
	for _, item := range items {
		var rec RunRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			LedgerErrors.WithLabelValues("runs").Inc()
			return nil, fmt.Errorf("decode run record: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, nil
}

// TaskState returns the stored state for a task. Returns ErrUnknownTask if
// nothing was recorded for it.
func (l *Ledger) TaskState(ctx context.Context, identifier, suffix string) (*TaskState, error) {
	key := TaskKey{Identifier: identifier, Suffix: suffix}.String()

	fields, err := l.redis.HGetAll(ctx, key).Result()
	if err != nil {
		LedgerErrors.WithLabelValues("task_state").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownTask
	}
	return parseTaskState(fields), nil
}
