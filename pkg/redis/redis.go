package redis

import (
	"AppealRecognition/internal/entity"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const runKeyPrefix = "run:"

// IRedis caches finalized runs. Only terminal runs are stored since they can
// no longer change.
type IRedis interface {
	SetRun(ctx context.Context, run entity.DetectionRun, expiration time.Duration) error
	GetRun(ctx context.Context, runID string) (entity.DetectionRun, bool, error)
}

type redisClient struct {
	client *redis.Client
}

type cachedRun struct {
	ID               string              `json:"id"`
	OwnerID          string              `json:"owner_id"`
	Status           entity.RunStatus    `json:"status"`
	OriginalArtifact *entity.ArtifactRef `json:"original_artifact,omitempty"`
	DetectedArtifact *entity.ArtifactRef `json:"detected_artifact,omitempty"`
	Detections       []entity.Detection  `json:"detections"`
	FailureReason    string              `json:"failure_reason,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// New returns nil when REDIS_ADDRESS is unset so the cache stays optional.
func New() IRedis {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		logrus.Info("REDIS_ADDRESS not set, run cache disabled")
		return nil
	}

	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisPassword := os.Getenv("REDIS_PASSWORD")

	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return NewFromClient(client)
}

func NewFromClient(client *redis.Client) IRedis {
	return &redisClient{client: client}
}

func (r *redisClient) SetRun(ctx context.Context, run entity.DetectionRun, expiration time.Duration) error {
	if !run.Status.IsTerminal() {
		return fmt.Errorf("refusing to cache run %s in status %s", run.ID, run.Status)
	}

	payload, err := jsoniter.MarshalToString(cachedRun{
		ID:               run.ID,
		OwnerID:          run.OwnerID,
		Status:           run.Status,
		OriginalArtifact: run.OriginalArtifact,
		DetectedArtifact: run.DetectedArtifact,
		Detections:       run.Detections,
		FailureReason:    run.FailureReason,
		CreatedAt:        run.CreatedAt,
		UpdatedAt:        run.UpdatedAt,
	})
	if err != nil {
		return err
	}

	logrus.Debug(fmt.Sprintf("Caching run %s with expiration %v", run.ID, expiration))
	if err := r.client.Set(ctx, runKeyPrefix+run.ID, payload, expiration).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error caching run %s: %v", run.ID, err))
		return err
	}
	return nil
}

func (r *redisClient) GetRun(ctx context.Context, runID string) (entity.DetectionRun, bool, error) {
	val, err := r.client.Get(ctx, runKeyPrefix+runID).Result()
	if errors.Is(err, redis.Nil) {
		logrus.Debug(fmt.Sprintf("Run %s not cached", runID))
		return entity.DetectionRun{}, false, nil
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error reading cached run %s: %v", runID, err))
		return entity.DetectionRun{}, false, err
	}

	var cached cachedRun
	if err := jsoniter.UnmarshalFromString(val, &cached); err != nil {
		return entity.DetectionRun{}, false, fmt.Errorf("decode cached run %s: %w", runID, err)
	}

	return entity.DetectionRun{
		ID:               cached.ID,
		OwnerID:          cached.OwnerID,
		Status:           cached.Status,
		OriginalArtifact: cached.OriginalArtifact,
		DetectedArtifact: cached.DetectedArtifact,
		Detections:       cached.Detections,
		FailureReason:    cached.FailureReason,
		CreatedAt:        cached.CreatedAt,
		UpdatedAt:        cached.UpdatedAt,
	}, true, nil
}
