package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "registry.db")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { Close() })
}

func TestModelRegistry(t *testing.T) {
	openTestDB(t)

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := SaveModel(ModelRecord{Name: "weather", Type: "decision_tree", Target: "Play", Payload: []byte(`{"a":1}`), CreatedAt: older}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SaveModel(ModelRecord{Name: "iris", Type: "mlp", Target: "species", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := LoadModelRecord("weather")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != "decision_tree" || rec.Target != "Play" || string(rec.Payload) != `{"a":1}` {
		t.Fatalf("unexpected record: %+v", rec)
	}

	list, err := ListModels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Name != "iris" {
		t.Fatalf("expected iris first, got %+v", list)
	}

	// Saving under an existing name replaces the model.
	if err := SaveModel(ModelRecord{Name: "weather", Type: "random_forest", Target: "Play", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err = LoadModelRecord("weather")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != "random_forest" {
		t.Fatalf("expected replaced model, got %s", rec.Type)
	}

	if err := DeleteModel("weather"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadModelRecord("weather"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if err := DeleteModel("weather"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestTrainingLog(t *testing.T) {
	openTestDB(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		entry := TrainingLog{
			ModelName:  name,
			ModelType:  "decision_tree",
			Accuracy:   0.5 + float64(i)/10,
			TrainedAt:  base.Add(time.Duration(i) * time.Hour),
			DataPoints: 100,
			TestPoints: 20,
			Duration:   1500 * time.Millisecond,
		}
		if err := SaveTrainingLog(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	logs, err := LoadTrainingLog(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].ModelName != "third" || logs[1].ModelName != "second" {
		t.Fatalf("expected newest first, got %s, %s", logs[0].ModelName, logs[1].ModelName)
	}
	if logs[0].Duration != 1500*time.Millisecond {
		t.Fatalf("expected duration 1.5s, got %v", logs[0].Duration)
	}

	all, err := LoadTrainingLog(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
}

func TestNotInitialized(t *testing.T) {
	Close()
	if err := SaveModel(ModelRecord{Name: "x"}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := LoadTrainingLog(0); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
