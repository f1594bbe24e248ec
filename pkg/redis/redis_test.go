package redis

import (
	"AppealRecognition/internal/entity"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableCache() IRedis {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
}

func TestNew_DisabledWithoutAddress(t *testing.T) {
	t.Setenv("REDIS_ADDRESS", "")
	assert.Nil(t, New())
}

func TestSetRun_RefusesProcessingRuns(t *testing.T) {
	err := unreachableCache().SetRun(context.Background(), entity.DetectionRun{
		ID:     "run-1",
		Status: entity.RunStatusProcessing,
	}, time.Minute)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to cache")
}

func TestGetRun_ReportsConnectionErrors(t *testing.T) {
	_, ok, err := unreachableCache().GetRun(context.Background(), "run-1")
	assert.Error(t, err)
	assert.False(t, ok)
}
