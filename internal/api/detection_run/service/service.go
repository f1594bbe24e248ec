package detectionRunService

import (
	"AppealRecognition/internal/api/detection_run"
	detectionRunRepository "AppealRecognition/internal/api/detection_run/repository"
	"AppealRecognition/internal/entity"
	"AppealRecognition/pkg/redis"
	"AppealRecognition/pkg/s3"
	"AppealRecognition/pkg/utils"
	"AppealRecognition/pkg/worker"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type IDetectionRunService interface {
	CreateRun(ctx context.Context, req detection_run.CreateRunRequest, file *multipart.FileHeader) (entity.DetectionRun, error)
	ListRuns(ctx context.Context, ownerID string) ([]entity.DetectionRun, error)
	GetRun(ctx context.Context, ownerID string, runID string) (entity.DetectionRun, error)
	GetCroppedArtifact(ctx context.Context, ownerID string, runID string, filename string) (entity.ArtifactRef, error)
	ReconcileStaleRuns(ctx context.Context) (int, error)
}

type Config struct {
	// ScratchDir holds one sub-directory per run.
	ScratchDir string
	// UploadConcurrency bounds parallel artifact uploads within one run.
	UploadConcurrency int
	// LedgerTimeout bounds ledger writes made after the pipeline has
	// detached from the caller.
	LedgerTimeout time.Duration
	// StaleAfter is how long a run may stay processing before
	// ReconcileStaleRuns fails it.
	StaleAfter   time.Duration
	PresignReads bool
	CacheTTL     time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{
		ScratchDir:        os.Getenv("SCRATCH_DIR"),
		UploadConcurrency: 8,
		LedgerTimeout:     10 * time.Second,
		StaleAfter:        30 * time.Minute,
		CacheTTL:          24 * time.Hour,
	}

	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "detection-runs")
	}
	if n, err := strconv.Atoi(os.Getenv("UPLOAD_CONCURRENCY")); err == nil && n > 0 {
		cfg.UploadConcurrency = n
	}
	if d, err := time.ParseDuration(os.Getenv("STALE_RUN_AFTER")); err == nil && d > 0 {
		cfg.StaleAfter = d
	}
	if d, err := time.ParseDuration(os.Getenv("REDIS_RUN_CACHE_TTL")); err == nil && d > 0 {
		cfg.CacheTTL = d
	}
	cfg.PresignReads, _ = strconv.ParseBool(os.Getenv("AWS_PRESIGN_READS"))

	return cfg
}

type detectionRunService struct {
	log           *logrus.Logger
	cfg           Config
	runRepository detectionRunRepository.Repository
	worker        worker.IWorker
	s3            s3.ItfS3
	cache         redis.IRedis
	utils         utils.IUtils
}

// NewDetectionRunService wires the pipeline. cache may be nil.
func NewDetectionRunService(
	log *logrus.Logger,
	cfg Config,
	rr detectionRunRepository.Repository,
	w worker.IWorker,
	s3 s3.ItfS3,
	cache redis.IRedis,
	utils utils.IUtils,
) IDetectionRunService {
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 8
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 10 * time.Second
	}

	return &detectionRunService{
		log:           log,
		cfg:           cfg,
		runRepository: rr,
		worker:        w,
		s3:            s3,
		cache:         cache,
		utils:         utils,
	}
}
