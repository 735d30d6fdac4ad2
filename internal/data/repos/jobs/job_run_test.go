package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos/testutil"
	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
)

func newJob(owner uuid.UUID, jobType, status string, entityID uuid.UUID, createdAt time.Time) *types.JobRun {
	return &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     jobType,
		EntityType:  "course",
		EntityID:    &entityID,
		Status:      status,
		Stage:       status,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestJobRunRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now()
	owner := uuid.New()

	queued := newJob(owner, "quiz_generate", types.JobStatusQueued, uuid.New(), now.Add(-3*time.Hour))
	failed := newJob(owner, "quiz_generate", types.JobStatusFailed, uuid.New(), now.Add(-2*time.Hour))
	lastErr := now.Add(-2 * time.Hour)
	failed.LastErrorAt = &lastErr
	stale := newJob(owner, "quiz_generate", types.JobStatusRunning, uuid.New(), now.Add(-1*time.Hour))
	hb := now.Add(-10 * time.Hour)
	stale.HeartbeatAt = &hb
	done := newJob(owner, "quiz_generate", types.JobStatusSucceeded, uuid.New(), now.Add(-4*time.Hour))

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, stale, done})
	require.NoError(t, err)
	require.Len(t, created, 4)

	policy := ClaimPolicy{MaxAttempts: 3, RetryDelay: time.Hour, StaleRunning: time.Hour}
	for _, want := range []uuid.UUID{queued.ID, failed.ID, stale.ID} {
		got, err := repo.ClaimNextRunnable(dbc, policy)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, want, got.ID)
		require.Equal(t, types.JobStatusRunning, got.Status)
	}
	got, err := repo.ClaimNextRunnable(dbc, policy)
	require.NoError(t, err)
	require.Nil(t, got)

	reloaded, err := repo.GetByID(dbc, queued.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Attempts)
	require.NotNil(t, reloaded.LockedAt)
}

func TestJobRunRepoGuardsAndLookups(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now()
	owner := uuid.New()
	courseID := uuid.New()

	older := newJob(owner, "quiz_generate", types.JobStatusSucceeded, courseID, now.Add(-5*time.Hour))
	newer := newJob(owner, "quiz_generate", types.JobStatusQueued, courseID, now.Add(-4*time.Hour))
	_, err := repo.Create(dbc, []*types.JobRun{older, newer})
	require.NoError(t, err)

	latest, err := repo.GetLatestByEntity(dbc, "course", courseID, "quiz_generate")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, newer.ID, latest.ID)

	exists, err := repo.ExistsRunnable(dbc, "quiz_generate", "course", &courseID)
	require.NoError(t, err)
	require.True(t, exists)

	other := uuid.New()
	exists, err = repo.ExistsRunnable(dbc, "quiz_generate", "course", &other)
	require.NoError(t, err)
	require.False(t, exists)

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, newer.ID, []string{types.JobStatusCanceled}, map[string]interface{}{"status": types.JobStatusCanceled})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.UpdateFieldsUnlessStatus(dbc, newer.ID, []string{types.JobStatusCanceled}, map[string]interface{}{"stage": "late write"})
	require.NoError(t, err)
	require.False(t, ok)

	missing, err := repo.GetByID(dbc, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}
