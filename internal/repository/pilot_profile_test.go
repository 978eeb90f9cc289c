package repository

import (
	"database/sql"
	"testing"
	"time"

	"fatigue-fusion-engine/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestPilotProfileRepository_GetByID_Success(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewPilotProfileRepository(db, zap.NewNop())

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "baseline_hr", "baseline_hrv", "sensitivity", "opaque", "updated_at"}).
		AddRow("pilot-1", 65.0, 80.0, "HIGH", []byte(`{"name":"Avery"}`), now)

	mock.ExpectQuery(`SELECT`).WithArgs("pilot-1").WillReturnRows(rows)

	profile, err := repo.GetByID("pilot-1")
	require.NoError(t, err)
	assert.Equal(t, "pilot-1", profile.ID)
	assert.True(t, profile.HasSensitivity)
	assert.Equal(t, model.SensitivityHigh, profile.Sensitivity)
	assert.Equal(t, "Avery", profile.Opaque["name"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPilotProfileRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewPilotProfileRepository(db, zap.NewNop())

	mock.ExpectQuery(`SELECT`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID("missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPilotProfileRepository_Upsert_ExecutesInsertOnConflict(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewPilotProfileRepository(db, zap.NewNop())

	mock.ExpectExec(`INSERT INTO pilot_profiles`).
		WithArgs("pilot-2", 70.0, 75.0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Upsert(model.PilotProfile{ID: "pilot-2", BaselineHR: 70, BaselineHRV: 75, UpdatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateHistoryRepository_Append_Success(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewStateHistoryRepository(db, zap.NewNop())

	mock.ExpectExec(`INSERT INTO state_history`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(model.StateSnapshot{
		Sequence: 1, State: model.StateMonitoringActive, Message: "ok", Service: "ffe",
	})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateHistoryRepository_Recent_ReturnsNewestFirst(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewStateHistoryRepository(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{"sequence", "state", "message", "timestamp_s", "pilot_id", "service", "data"}).
		AddRow(2, "ALERT_MILD", "b", 101.0, nil, "ffe", []byte(`{}`)).
		AddRow(1, "MONITORING_ACTIVE", "a", 100.0, nil, "ffe", []byte(`{}`))

	mock.ExpectQuery(`SELECT`).WithArgs(10).WillReturnRows(rows)

	hist, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, uint64(2), hist[0].Sequence)
	assert.Equal(t, model.StateAlertMild, hist[0].State)

	require.NoError(t, mock.ExpectationsWereMet())
}
