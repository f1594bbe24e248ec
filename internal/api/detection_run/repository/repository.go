package detectionRunRepository

import (
	"AppealRecognition/internal/entity"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type SQLExecutor interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	Rebind(query string) string
}

func New(db *sqlx.DB, log *logrus.Logger) Repository {
	return &repository{
		DB:  db,
		log: log,
	}
}

type repository struct {
	DB  *sqlx.DB
	log *logrus.Logger
}

type Repository interface {
	NewClient(tx bool) (Client, error)
}

func (r *repository) NewClient(tx bool) (Client, error) {
	var sqlExecutor SQLExecutor
	var commitFunc, rollbackFunc func() error

	sqlExecutor = r.DB

	if tx {
		var err error
		txx, err := r.DB.Beginx()
		if err != nil {
			return Client{}, err
		}

		sqlExecutor = txx
		commitFunc = txx.Commit
		rollbackFunc = txx.Rollback
	} else {
		commitFunc = func() error { return nil }
		rollbackFunc = func() error { return nil }
	}

	return Client{
		Run:      &runRepository{q: sqlExecutor, log: r.log},
		Commit:   commitFunc,
		Rollback: rollbackFunc,
	}, nil
}

// Client is the run ledger. Only the pipeline that created a run mutates it;
// each mutation is a single-row update guarded by status = 'processing'.
type Client struct {
	Run interface {
		CreateRun(c context.Context, run entity.DetectionRun) error
		MarkCompleted(c context.Context, id string, original, detected entity.ArtifactRef, detections []entity.Detection) (entity.DetectionRun, error)
		MarkFailed(c context.Context, id string, reason string) (entity.DetectionRun, error)
		GetRunByID(c context.Context, id string) (entity.DetectionRun, error)
		GetRunByOwner(c context.Context, ownerID string, id string) (entity.DetectionRun, error)
		GetRunsByOwner(c context.Context, ownerID string, limit int) ([]entity.DetectionRun, error)
		GetStaleRuns(c context.Context, startedBefore time.Time) ([]entity.DetectionRun, error)
	}

	Commit   func() error
	Rollback func() error
}

type runRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}
