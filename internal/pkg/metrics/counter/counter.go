package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/veloscope/VeloScope/app/models"
)

const statsHashKey = "sync:counters"

// Counters accumulates pipeline counter deltas in a Redis hash. Increments
// are atomic (HINCRBY); Drain hands the accumulated deltas to the caller for
// durable flushing. Everything is best effort: a lost delta costs a stat,
// never a job.
type Counters struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Counters {
	return &Counters{rdb: rdb}
}

// AddProcessed increments the pending processed-jobs counter
func (c *Counters) AddProcessed(ctx context.Context) {
	c.add(ctx, models.MetricJobsProcessed)
}

// AddFailed increments the pending failed-jobs counter
func (c *Counters) AddFailed(ctx context.Context) {
	c.add(ctx, models.MetricJobsFailed)
}

func (c *Counters) add(ctx context.Context, metric string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.HIncrBy(ctx, statsHashKey, metric, 1).Err(); err != nil {
		log.Errorf("[Counter] Increment %s failed: %v", metric, err)
	}
}

// Drain atomically moves the counter hash aside and returns its deltas.
// Uses RENAME to a temporary key so in-flight increments are never lost.
func (c *Counters) Drain(ctx context.Context) (map[string]int64, error) {
	if c == nil || c.rdb == nil {
		return nil, nil
	}

	tmpKey := fmt.Sprintf("%s:tmp:%d", statsHashKey, time.Now().UnixNano())
	if err := c.rdb.Do(ctx, "RENAME", statsHashKey, tmpKey).Err(); err != nil {
		// Key absent means nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil, nil
		}
		return nil, err
	}

	fields, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Del(ctx, tmpKey).Err(); err != nil {
		log.Errorf("[Counter] Cleanup of %s failed: %v", tmpKey, err)
	}

	out := make(map[string]int64, len(fields))
	for metric, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Errorf("[Counter] Skipping malformed counter %s=%q", metric, raw)
			continue
		}
		if n != 0 {
			out[metric] = n
		}
	}
	return out, nil
}
