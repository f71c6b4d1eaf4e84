package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evolonics/modelprep/internal/layout"
	"github.com/evolonics/modelprep/internal/storage"
)

// ErrNoManifest is returned when a run has no manifest yet.
var ErrNoManifest = errors.New("no run manifest found")

// Stage status values recorded in the manifest.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StageRecord is one stage's entry in the run manifest.
type StageRecord struct {
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	MetadataKey string     `json:"metadata_key,omitempty"`
}

// Manifest is the per-run status record written after every stage
// transition. It is diagnostic: stages hand state to each other through
// their metadata records, never through the manifest.
type Manifest struct {
	RunID     string                 `json:"run_id"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Stages    map[string]StageRecord `json:"stages"`
}

// ManifestManager persists run manifests in the artifact store.
type ManifestManager struct {
	store storage.Store
	run   layout.Run
}

// NewManifestManager creates a manifest manager for one run.
func NewManifestManager(store storage.Store, run layout.Run) *ManifestManager {
	return &ManifestManager{store: store, run: run}
}

// Load reads the run's manifest.
func (m *ManifestManager) Load(ctx context.Context) (*Manifest, error) {
	ok, err := m.store.Exists(ctx, m.run.Manifest())
	if err != nil {
		return nil, fmt.Errorf("check manifest: %w", err)
	}
	if !ok {
		return nil, ErrNoManifest
	}
	data, err := m.store.Read(ctx, m.run.Manifest())
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var mf Manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &mf, nil
}

// StageStarted records a stage transition to running and persists the
// manifest, creating it on first use.
func (m *ManifestManager) StageStarted(ctx context.Context, stage string) error {
	mf, err := m.Load(ctx)
	if errors.Is(err, ErrNoManifest) {
		now := time.Now().UTC()
		mf = &Manifest{
			RunID:     m.run.ID,
			CreatedAt: now,
			Stages:    make(map[string]StageRecord),
		}
	} else if err != nil {
		return err
	}
	mf.Stages[stage] = StageRecord{
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	return m.save(ctx, mf)
}

// StageCompleted records a successful stage, pointing at its metadata key.
func (m *ManifestManager) StageCompleted(ctx context.Context, stage string) error {
	return m.finish(ctx, stage, StatusCompleted, "")
}

// StageFailed records a failed stage with its error text.
func (m *ManifestManager) StageFailed(ctx context.Context, stage string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return m.finish(ctx, stage, StatusFailed, msg)
}

func (m *ManifestManager) finish(ctx context.Context, stage, status, errMsg string) error {
	mf, err := m.Load(ctx)
	if err != nil {
		return err
	}
	rec := mf.Stages[stage]
	now := time.Now().UTC()
	rec.Status = status
	rec.FinishedAt = &now
	rec.Error = errMsg
	if status == StatusCompleted {
		rec.MetadataKey = m.run.StageMetadata(stage)
	}
	mf.Stages[stage] = rec
	return m.save(ctx, mf)
}

func (m *ManifestManager) save(ctx context.Context, mf *Manifest) error {
	mf.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := m.store.Write(ctx, m.run.Manifest(), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
