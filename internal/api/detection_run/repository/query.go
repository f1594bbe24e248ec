package detectionRunRepository

const (
	queryCreateRun = `
		INSERT INTO detection_runs (
			id,
			owner_id,
			status,
			detections,
			created_at,
			updated_at
		) VALUES (
			:id,
			:owner_id,
			:status,
			:detections,
			:created_at,
			:updated_at
		)
	`

	queryMarkCompleted = `
		UPDATE detection_runs
		SET
			status = :status,
			original_key = :original_key,
			original_url = :original_url,
			detected_key = :detected_key,
			detected_url = :detected_url,
			detections = :detections,
			failure_reason = NULL,
			updated_at = :updated_at
		WHERE id = :id
			AND status = :from_status
	`

	queryMarkFailed = `
		UPDATE detection_runs
		SET
			status = :status,
			failure_reason = :failure_reason,
			updated_at = :updated_at
		WHERE id = :id
			AND status = :from_status
	`

	queryGetRunByID = `
		SELECT
			id,
			owner_id,
			status,
			original_key,
			original_url,
			detected_key,
			detected_url,
			detections,
			failure_reason,
			created_at,
			updated_at
		FROM detection_runs
		WHERE id = :id
	`

	queryGetRunByOwner = `
		SELECT
			id,
			owner_id,
			status,
			original_key,
			original_url,
			detected_key,
			detected_url,
			detections,
			failure_reason,
			created_at,
			updated_at
		FROM detection_runs
		WHERE id = :id
			AND owner_id = :owner_id
	`

	queryGetRunsByOwner = `
		SELECT
			id,
			owner_id,
			status,
			original_key,
			original_url,
			detected_key,
			detected_url,
			detections,
			failure_reason,
			created_at,
			updated_at
		FROM detection_runs
		WHERE owner_id = :owner_id
		ORDER BY created_at DESC, id DESC
		LIMIT :limit
	`

	queryGetStaleRuns = `
		SELECT
			id,
			owner_id,
			status,
			original_key,
			original_url,
			detected_key,
			detected_url,
			detections,
			failure_reason,
			created_at,
			updated_at
		FROM detection_runs
		WHERE status = :status
			AND created_at < :started_before
		ORDER BY created_at ASC
	`
)
