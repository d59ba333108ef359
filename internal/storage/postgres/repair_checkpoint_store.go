package postgres

import (
	"context"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// RepairCheckpointStore implements storage.RepairCheckpointStore using PostgreSQL.
type RepairCheckpointStore struct {
	pool *Pool
}

// NewRepairCheckpointStore creates a new RepairCheckpointStore.
func NewRepairCheckpointStore(pool *Pool) *RepairCheckpointStore {
	return &RepairCheckpointStore{pool: pool}
}

var _ storage.RepairCheckpointStore = (*RepairCheckpointStore)(nil)

// Get returns the checkpoint of a job.
func (s *RepairCheckpointStore) Get(ctx context.Context, jobID string) (*domain.RepairCheckpoint, error) {
	var cp domain.RepairCheckpoint
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, last_token_id, updated_at FROM repair_checkpoints WHERE job_id = $1`, jobID,
	).Scan(&cp.JobID, &cp.LastTokenID, &cp.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapErr("get repair checkpoint", err)
	}
	return &cp, nil
}

// Save upserts the checkpoint of a job.
func (s *RepairCheckpointStore) Save(ctx context.Context, cp *domain.RepairCheckpoint) error {
	if cp == nil || cp.JobID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO repair_checkpoints (job_id, last_token_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE
		SET last_token_id = EXCLUDED.last_token_id, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, cp.JobID, cp.LastTokenID, cp.UpdatedAt); err != nil {
		return wrapErr("save repair checkpoint", err)
	}
	return nil
}
