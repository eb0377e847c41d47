package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"poolscope/internal/model"
)

// Snapshot is the full reconstructed entity state at a point in the feed.
type Snapshot struct {
	Pools     []model.Pool  `json:"pools"`
	Tokens    []model.Token `json:"tokens"`
	Ticks     []model.Tick  `json:"ticks"`
	Bundle    *model.Bundle `json:"bundle,omitempty"`
	WrittenAt string        `json:"written_at"`
}

// WriteSnapshot writes the snapshot atomically via a temp file rename.
func WriteSnapshot(path string, snap Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	snap.WrittenAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a previously written snapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, nil
}
