// Package repository holds the FFE's Postgres persistence: durable
// PilotProfile storage and an append-only state-transition audit log.
// Adapted from wisefido-alarm/internal/repository's *sql.DB-plus-zap
// shape (card.go), generalized from tenant/card lookups to pilot
// baselines and committed StateSnapshots.
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fatigue-fusion-engine/internal/model"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PilotProfileRepository persists PilotProfile records, the durable
// counterpart to the TTL'd data:pilot:{id} bus key.
type PilotProfileRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPilotProfileRepository(db *sql.DB, logger *zap.Logger) *PilotProfileRepository {
	return &PilotProfileRepository{db: db, logger: logger}
}

// Upsert writes or updates a pilot's baselines and opaque fields.
func (r *PilotProfileRepository) Upsert(profile model.PilotProfile) error {
	opaqueJSON, err := json.Marshal(profile.Opaque)
	if err != nil {
		return fmt.Errorf("marshal opaque profile fields: %w", err)
	}

	var sensitivity sql.NullString
	if profile.HasSensitivity {
		sensitivity = sql.NullString{String: string(profile.Sensitivity), Valid: true}
	}

	query := `
		INSERT INTO pilot_profiles (id, baseline_hr, baseline_hrv, sensitivity, opaque, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			baseline_hr = EXCLUDED.baseline_hr,
			baseline_hrv = EXCLUDED.baseline_hrv,
			sensitivity = EXCLUDED.sensitivity,
			opaque = EXCLUDED.opaque,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Exec(query, profile.ID, profile.BaselineHR, profile.BaselineHRV, sensitivity, opaqueJSON, profile.UpdatedAt); err != nil {
		return fmt.Errorf("upsert pilot profile: %w", err)
	}
	return nil
}

// GetByID fetches a pilot's durable profile.
func (r *PilotProfileRepository) GetByID(id string) (*model.PilotProfile, error) {
	query := `
		SELECT id, baseline_hr, baseline_hrv, sensitivity, opaque, updated_at
		FROM pilot_profiles
		WHERE id = $1
	`
	var profile model.PilotProfile
	var sensitivity sql.NullString
	var opaqueJSON []byte

	err := r.db.QueryRow(query, id).Scan(
		&profile.ID, &profile.BaselineHR, &profile.BaselineHRV, &sensitivity, &opaqueJSON, &profile.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("pilot profile not found: %s", id)
		}
		return nil, fmt.Errorf("query pilot profile: %w", err)
	}

	if sensitivity.Valid {
		profile.HasSensitivity = true
		profile.Sensitivity = model.Sensitivity(sensitivity.String)
	}
	if len(opaqueJSON) > 0 {
		if err := json.Unmarshal(opaqueJSON, &profile.Opaque); err != nil {
			return nil, fmt.Errorf("unmarshal opaque profile fields: %w", err)
		}
	}

	return &profile, nil
}

// StateHistoryRepository persists committed StateSnapshots for offline
// audit — the durable counterpart to the SM's in-memory history ring,
// which is bounded and lost on restart.
type StateHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStateHistoryRepository(db *sql.DB, logger *zap.Logger) *StateHistoryRepository {
	return &StateHistoryRepository{db: db, logger: logger}
}

// Append inserts one committed snapshot and returns any persistence
// failure to its caller; cmd/ffe's subscriber logs that error rather than
// propagating it, since the SM's in-memory history remains authoritative
// for the running process.
func (r *StateHistoryRepository) Append(snap model.StateSnapshot) error {
	dataJSON, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}

	var pilotID sql.NullString
	if snap.HasPilotID {
		pilotID = sql.NullString{String: snap.PilotID, Valid: true}
	}

	query := `
		INSERT INTO state_history (sequence, state, message, timestamp_s, pilot_id, service, data, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.Exec(query, snap.Sequence, string(snap.State), snap.Message, snap.TimestampS, pilotID, snap.Service, dataJSON, time.Now()); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// duplicate sequence: the same snapshot was already persisted
			// (e.g. a retried write), not a failure worth surfacing.
			return nil
		}
		return fmt.Errorf("append state history: %w", err)
	}
	return nil
}

// Recent fetches up to limit persisted snapshots, newest first. Nothing
// in the running process calls it; the SM's history is not seeded from it.
func (r *StateHistoryRepository) Recent(limit int) ([]model.StateSnapshot, error) {
	query := `
		SELECT sequence, state, message, timestamp_s, pilot_id, service, data
		FROM state_history
		ORDER BY sequence DESC
		LIMIT $1
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("query state history: %w", err)
	}
	defer rows.Close()

	var out []model.StateSnapshot
	for rows.Next() {
		var snap model.StateSnapshot
		var state string
		var pilotID sql.NullString
		var dataJSON []byte

		if err := rows.Scan(&snap.Sequence, &state, &snap.Message, &snap.TimestampS, &pilotID, &snap.Service, &dataJSON); err != nil {
			return nil, fmt.Errorf("scan state history row: %w", err)
		}
		snap.State = model.SystemState(state)
		if pilotID.Valid {
			snap.HasPilotID = true
			snap.PilotID = pilotID.String
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &snap.Data); err != nil {
				return nil, fmt.Errorf("unmarshal state history data: %w", err)
			}
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state history: %w", err)
	}
	return out, nil
}
