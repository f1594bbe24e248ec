package detectionRunRepository

import (
	"AppealRecognition/internal/api/detection_run"
	"AppealRecognition/internal/entity"
	contextPkg "AppealRecognition/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const DefaultListLimit = 500

type DetectionRunDB struct {
	ID            sql.NullString `db:"id"`
	OwnerID       sql.NullString `db:"owner_id"`
	Status        sql.NullString `db:"status"`
	OriginalKey   sql.NullString `db:"original_key"`
	OriginalURL   sql.NullString `db:"original_url"`
	DetectedKey   sql.NullString `db:"detected_key"`
	DetectedURL   sql.NullString `db:"detected_url"`
	Detections    sql.NullString `db:"detections"`
	FailureReason sql.NullString `db:"failure_reason"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *runRepository) CreateRun(c context.Context, run entity.DetectionRun) error {
	requestID := contextPkg.GetRequestID(c)

	detections, err := encodeDetections(run.Detections)
	if err != nil {
		return err
	}

	argsKV := map[string]interface{}{
		"id":         run.ID,
		"owner_id":   run.OwnerID,
		"status":     string(entity.RunStatusProcessing),
		"detections": detections,
		"created_at": run.CreatedAt.UTC(),
		"updated_at": run.UpdatedAt.UTC(),
	}

	query, args, err := sqlx.Named(queryCreateRun, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateRun")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(c, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"run_id":     run.ID,
			"error":      err.Error(),
		}).Error("Database error when creating run")
		return err
	}

	return nil
}

func (r *runRepository) MarkCompleted(c context.Context, id string, original, detected entity.ArtifactRef, detections []entity.Detection) (entity.DetectionRun, error) {
	encoded, err := encodeDetections(detections)
	if err != nil {
		return entity.DetectionRun{}, err
	}

	argsKV := map[string]interface{}{
		"id":           id,
		"status":       string(entity.RunStatusCompleted),
		"from_status":  string(entity.RunStatusProcessing),
		"original_key": original.Key,
		"original_url": original.URL,
		"detected_key": detected.Key,
		"detected_url": detected.URL,
		"detections":   encoded,
		"updated_at":   time.Now().UTC(),
	}

	return r.finalize(c, id, queryMarkCompleted, argsKV, "MarkCompleted")
}

func (r *runRepository) MarkFailed(c context.Context, id string, reason string) (entity.DetectionRun, error) {
	argsKV := map[string]interface{}{
		"id":             id,
		"status":         string(entity.RunStatusFailed),
		"from_status":    string(entity.RunStatusProcessing),
		"failure_reason": reason,
		"updated_at":     time.Now().UTC(),
	}

	return r.finalize(c, id, queryMarkFailed, argsKV, "MarkFailed")
}

// finalize applies a processing -> terminal transition. Zero affected rows
// means the run is missing or already terminal.
func (r *runRepository) finalize(c context.Context, id string, namedQuery string, argsKV map[string]interface{}, operation string) (entity.DetectionRun, error) {
	requestID := contextPkg.GetRequestID(c)

	query, args, err := sqlx.Named(namedQuery, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Errorf("%s named query preparation err", operation)
		return entity.DetectionRun{}, err
	}
	query = r.q.Rebind(query)

	result, err := r.q.ExecContext(c, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"run_id":     id,
			"error":      err.Error(),
		}).Errorf("%s execution err", operation)
		return entity.DetectionRun{}, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return entity.DetectionRun{}, err
	}

	run, err := r.GetRunByID(c, id)
	if err != nil {
		return entity.DetectionRun{}, err
	}

	if affected == 0 {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"run_id":     id,
			"status":     run.Status,
		}).Warnf("%s on a run that is no longer processing", operation)
		return run, detection_run.ErrRunNotProcessing
	}

	return run, nil
}

func (r *runRepository) GetRunByID(c context.Context, id string) (entity.DetectionRun, error) {
	return r.getOne(c, queryGetRunByID, map[string]interface{}{"id": id}, "GetRunByID")
}

func (r *runRepository) GetRunByOwner(c context.Context, ownerID string, id string) (entity.DetectionRun, error) {
	return r.getOne(c, queryGetRunByOwner, map[string]interface{}{
		"id":       id,
		"owner_id": ownerID,
	}, "GetRunByOwner")
}

func (r *runRepository) getOne(c context.Context, namedQuery string, argsKV map[string]interface{}, operation string) (entity.DetectionRun, error) {
	requestID := contextPkg.GetRequestID(c)
	var run DetectionRunDB

	query, args, err := sqlx.Named(namedQuery, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Errorf("%s named query preparation err", operation)
		return entity.DetectionRun{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(c, query, args...).StructScan(&run); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warnf("%s no rows found", operation)
			return entity.DetectionRun{}, detection_run.ErrRunNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Errorf("%s execution err", operation)
		return entity.DetectionRun{}, err
	}

	return r.makeDetectionRun(run)
}

func (r *runRepository) GetRunsByOwner(c context.Context, ownerID string, limit int) ([]entity.DetectionRun, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	return r.getMany(c, queryGetRunsByOwner, map[string]interface{}{
		"owner_id": ownerID,
		"limit":    limit,
	}, "GetRunsByOwner")
}

func (r *runRepository) GetStaleRuns(c context.Context, startedBefore time.Time) ([]entity.DetectionRun, error) {
	return r.getMany(c, queryGetStaleRuns, map[string]interface{}{
		"status":         string(entity.RunStatusProcessing),
		"started_before": startedBefore.UTC(),
	}, "GetStaleRuns")
}

func (r *runRepository) getMany(c context.Context, namedQuery string, argsKV map[string]interface{}, operation string) ([]entity.DetectionRun, error) {
	requestID := contextPkg.GetRequestID(c)
	var rows []DetectionRunDB

	query, args, err := sqlx.Named(namedQuery, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Errorf("%s named query preparation err", operation)
		return nil, err
	}
	query = r.q.Rebind(query)

	if err := r.q.SelectContext(c, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Errorf("%s execution err", operation)
		return nil, err
	}

	result := make([]entity.DetectionRun, 0, len(rows))
	for _, row := range rows {
		run, err := r.makeDetectionRun(row)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}

	return result, nil
}

func (r *runRepository) makeDetectionRun(row DetectionRunDB) (entity.DetectionRun, error) {
	run := entity.DetectionRun{
		ID:            row.ID.String,
		OwnerID:       row.OwnerID.String,
		Status:        entity.RunStatus(row.Status.String),
		FailureReason: row.FailureReason.String,
		Detections:    []entity.Detection{},
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}

	if row.OriginalKey.Valid {
		run.OriginalArtifact = &entity.ArtifactRef{Key: row.OriginalKey.String, URL: row.OriginalURL.String}
	}
	if row.DetectedKey.Valid {
		run.DetectedArtifact = &entity.ArtifactRef{Key: row.DetectedKey.String, URL: row.DetectedURL.String}
	}

	if row.Detections.Valid && row.Detections.String != "" {
		if err := jsoniter.UnmarshalFromString(row.Detections.String, &run.Detections); err != nil {
			r.log.WithFields(logrus.Fields{
				"run_id": run.ID,
				"error":  err.Error(),
			}).Error("Failed to decode stored detections")
			return entity.DetectionRun{}, err
		}
	}

	return run, nil
}

func encodeDetections(detections []entity.Detection) (string, error) {
	if detections == nil {
		detections = []entity.Detection{}
	}
	return jsoniter.MarshalToString(detections)
}
