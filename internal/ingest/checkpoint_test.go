package ingest

import (
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewCheckpointStore(path, true)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("fresh checkpoint should be absent: ok=%v err=%v", ok, err)
	}

	if err := store.Save(12345); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok || cp.LastProcessedBlock != 12345 {
		t.Fatalf("checkpoint mismatch: ok=%v cp=%+v", ok, cp)
	}
}

func TestCheckpointDisabled(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.json"), false)
	if err := store.Save(99); err != nil {
		t.Fatalf("disabled save should be a no-op: %v", err)
	}
	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("disabled load should report absent: ok=%v err=%v", ok, err)
	}
}
