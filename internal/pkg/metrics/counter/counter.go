package counter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/cache"
	"github.com/curavoy/curavoy/internal/pkg/database"
)

const (
	depositsKey          = "stats:counters:deposits_initiated"
	webhooksProcessedKey = "stats:counters:webhooks_processed"
	webhooksDuplicateKey = "stats:counters:webhooks_duplicate"
	payoutsExecutedKey   = "stats:counters:payouts_executed"
)

// Metric names as stored in daily_stats.
const (
	MetricDepositsInitiated = "deposits_initiated"
	MetricWebhooksProcessed = "webhooks_processed"
	MetricWebhooksDuplicate = "webhooks_duplicate"
	MetricPayoutsExecuted   = "payouts_executed"
)

// AddDeposit increments the pending deposit counter for today in Redis
func AddDeposit() error {
	return incrToday(depositsKey)
}

// AddWebhookProcessed increments the pending processed-webhook counter in Redis
func AddWebhookProcessed() error {
	return incrToday(webhooksProcessedKey)
}

// AddWebhookDuplicate increments the pending duplicate-webhook counter in Redis
func AddWebhookDuplicate() error {
	return incrToday(webhooksDuplicateKey)
}

// AddPayoutExecuted increments the pending executed-payout counter in Redis
func AddPayoutExecuted() error {
	return incrToday(payoutsExecutedKey)
}

func incrToday(key string) error {
	ctx := context.Background()
	field := time.Now().UTC().Format("2006-01-02")
	return cache.GetClient().HIncrBy(ctx, key, field, 1).Err()
}

// FlushAll flushes all pending counters to the daily_stats table
func FlushAll() error {
	for key, metric := range map[string]string{
		depositsKey:          MetricDepositsInitiated,
		webhooksProcessedKey: MetricWebhooksProcessed,
		webhooksDuplicateKey: MetricWebhooksDuplicate,
		payoutsExecutedKey:   MetricPayoutsExecuted,
	} {
		if err := flushHash(key, metric); err != nil {
			return err
		}
	}
	return nil
}

// flushHash drains a per-day Redis hash atomically and upserts the increments
// into daily_stats. Uses RENAME to a temporary key so in-flight increments
// land in the next flush instead of getting lost.
func flushHash(redisKey, metric string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// Missing key means nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || err.Error() == "redis: nil" {
			return nil
		}
		return err
	}
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	dates := make([]string, 0, len(data))
	for d := range data {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	db := database.GetDB()
	for _, date := range dates {
		var inc int64
		if _, err := fmt.Sscan(data[date], &inc); err != nil || inc == 0 {
			continue
		}
		row := models.DailyStat{Date: date, Metric: metric, Count: inc}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "metric"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gormExprCountPlus(inc)}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func gormExprCountPlus(inc int64) interface{} {
	return clause.Expr{SQL: "count + ?", Vars: []interface{}{inc}}
}
