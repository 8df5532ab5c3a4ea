package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/LinHaoYu/ContractLens/internal/pkg/cache"
)

const (
	analysesKey = "metrics:counters:analyses"
	webhooksKey = "metrics:counters:webhooks"
)

// AddAnalysis increments the per-day counter for analyses served on a tier.
func AddAnalysis(tier string) error {
	ctx := context.Background()
	field := fmt.Sprintf("%s:%s", time.Now().Format("2006-01-02"), tier)
	return cache.GetClient().HIncrBy(ctx, analysesKey, field, 1).Err()
}

// AddWebhook increments the per-day counter for a webhook delivery outcome.
func AddWebhook(provider, result string) error {
	ctx := context.Background()
	field := fmt.Sprintf("%s:%s:%s", time.Now().Format("2006-01-02"), provider, result)
	return cache.GetClient().HIncrBy(ctx, webhooksKey, field, 1).Err()
}

// Snapshot reads both counter hashes. Keys are "date:tier" for analyses and
// "date:provider:result" for webhooks.
func Snapshot() (analyses map[string]string, webhooks map[string]string, err error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	analyses, err = rdb.HGetAll(ctx, analysesKey).Result()
	if err != nil {
		return nil, nil, err
	}
	webhooks, err = rdb.HGetAll(ctx, webhooksKey).Result()
	if err != nil {
		return nil, nil, err
	}
	return analyses, webhooks, nil
}
