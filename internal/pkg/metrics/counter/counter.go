package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/vibecodementor/VibeMentor/internal/pkg/cache"
	"github.com/vibecodementor/VibeMentor/internal/pkg/database"
)

const (
	generationCountersKey = "usage:counters:generation"
	chatCountersKey       = "usage:counters:chat"
)

// AddGeneration increments the pending accepted-generation counter for today in Redis
func AddGeneration() error {
	ctx := context.Background()
	field := time.Now().UTC().Format("2006-01-02")
	return cache.GetClient().HIncrBy(ctx, generationCountersKey, field, 1).Err()
}

// AddChatMessage increments the pending accepted-chat counter for today in Redis
func AddChatMessage() error {
	ctx := context.Background()
	field := time.Now().UTC().Format("2006-01-02")
	return cache.GetClient().HIncrBy(ctx, chatCountersKey, field, 1).Err()
}

// FlushAll flushes pending generation and chat counters to the usage_stats table
func FlushAll() error {
	if err := flushHashToUsageStats(generationCountersKey, "generation"); err != nil {
		return err
	}
	if err := flushHashToUsageStats(chatCountersKey, "chat"); err != nil {
		return err
	}
	return nil
}

// pendingCount is one drained per-day counter awaiting its SQL upsert.
type pendingCount struct {
	date  string
	count int64
}

// parsePending filters a drained hash down to valid date/count pairs.
func parsePending(data map[string]string) []pendingCount {
	entries := make([]pendingCount, 0, len(data))
	for date, v := range data {
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			continue
		}
		entries = append(entries, pendingCount{date: date, count: inc})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].date < entries[j].date })
	return entries
}

// flushPending applies upsert to each entry in order. On the first failure it
// stops and returns every entry that was not applied, so the caller can merge
// those counts back instead of losing them.
func flushPending(entries []pendingCount, upsert func(pendingCount) error) ([]pendingCount, error) {
	for i, entry := range entries {
		if err := upsert(entry); err != nil {
			return entries[i:], err
		}
	}
	return nil, nil
}

// flushHashToUsageStats drains a Redis hash atomically and applies batched increments
// to usage_stats. Uses RENAME to a temporary key for atomic drain without losing
// in-flight increments; counts whose upsert fails are merged back into the
// live hash for the next flush.
func flushHashToUsageStats(redisKey, action string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	db := database.GetDB()
	leftover, flushErr := flushPending(parsePending(data), func(entry pendingCount) error {
		sql := "INSERT INTO usage_stats (stat_date, action, count, created_at, updated_at) " +
			"VALUES (?, ?, ?, NOW(), NOW()) " +
			"ON DUPLICATE KEY UPDATE count = count + VALUES(count), updated_at = NOW()"
		return db.Exec(sql, entry.date, action, entry.count).Error
	})

	for _, entry := range leftover {
		if err := rdb.HIncrBy(ctx, redisKey, entry.date, entry.count).Err(); err != nil {
			log.Errorf("[Counter] failed to merge back %d %s counts for %s: %v", entry.count, action, entry.date, err)
		}
	}

	return flushErr
}
