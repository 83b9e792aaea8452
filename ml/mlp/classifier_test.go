package mlp

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"tabularml/dataset"
)

func clusterDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	points := []struct {
		x, y  float64
		label string
	}{
		{0.1, 0.2, "low"}, {0.2, 0.1, "low"}, {0.15, 0.3, "low"}, {0.3, 0.2, "low"},
		{0.9, 0.8, "high"}, {0.8, 0.9, "high"}, {0.85, 0.7, "high"}, {0.7, 0.95, "high"},
	}
	rows := make([]dataset.Row, 0, len(points))
	for _, p := range points {
		rows = append(rows, dataset.Row{
			"x":     dataset.Number(p.x),
			"y":     dataset.Number(p.y),
			"color": dataset.Text("red"),
			"class": dataset.Text(p.label),
		})
	}
	ds, err := dataset.New(rows, "class")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ds
}

func testParams() Params {
	return Params{
		Hidden:           []int{3},
		LearningRate:     0.5,
		Epochs:           200,
		HiddenActivation: "tanh",
		Seed:             3,
	}
}

func TestNewUsesNumericInputs(t *testing.T) {
	c, err := New(clusterDataset(t), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inputs := c.Inputs()
	if len(inputs) != 2 || inputs[0] != "x" || inputs[1] != "y" {
		t.Fatalf("expected inputs [x y], got %v", inputs)
	}
	if got := c.Network().Outputs(); got != 2 {
		t.Fatalf("expected 2 outputs, got %d", got)
	}
	if got := len(c.LossHistory()); got != 200 {
		t.Fatalf("expected 200 loss entries, got %d", got)
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	c, err := New(clusterDataset(t), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loss := c.LossHistory()
	if loss[len(loss)-1] >= loss[0] {
		t.Fatalf("expected loss to drop, first %v last %v", loss[0], loss[len(loss)-1])
	}
	if err := c.Train(clusterDataset(t), 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(c.LossHistory()); got != 205 {
		t.Fatalf("expected 205 loss entries after retraining, got %d", got)
	}
}

func TestSameSeedSameWeights(t *testing.T) {
	a, err := New(clusterDataset(t), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := New(clusterDataset(t), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, l := range a.Network().Layers() {
		other := b.Network().Layers()[i]
		for j, n := range l.Neurons {
			if n.Bias != other.Neurons[j].Bias {
				t.Fatalf("layer %d neuron %d bias differs", i, j)
			}
			for k, w := range n.Weights {
				if w != other.Neurons[j].Weights[k] {
					t.Fatalf("layer %d neuron %d weight %d differs", i, j, k)
				}
			}
		}
	}
}

func TestScoresAreProbabilities(t *testing.T) {
	c, err := New(clusterDataset(t), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scores, err := c.Scores(dataset.Row{"x": dataset.Number(0.5), "y": dataset.Number(0.5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	if sum < 1-1e-9 || sum > 1+1e-9 {
		t.Fatalf("expected scores to sum to 1, got %v", sum)
	}
}

func TestNumericTargetRejected(t *testing.T) {
	rows := []dataset.Row{
		{"x": dataset.Number(1), "y": dataset.Number(2)},
		{"x": dataset.Number(2), "y": dataset.Number(4)},
	}
	ds, err := dataset.New(rows, "y")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New(ds, testParams()); !errors.Is(err, ErrNumericTarget) {
		t.Fatalf("expected ErrNumericTarget, got %v", err)
	}
}

func TestNoNumericInputs(t *testing.T) {
	rows := []dataset.Row{
		{"color": dataset.Text("red"), "class": dataset.Text("a")},
		{"color": dataset.Text("blue"), "class": dataset.Text("b")},
	}
	ds, err := dataset.New(rows, "class")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New(ds, testParams()); !errors.Is(err, ErrNoInputs) {
		t.Fatalf("expected ErrNoInputs, got %v", err)
	}
}

func TestPredictContractViolations(t *testing.T) {
	c, err := New(clusterDataset(t), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Predict(dataset.Row{"x": dataset.Number(0.1)}); !errors.Is(err, dataset.ErrMissingAttribute) {
		t.Fatalf("expected ErrMissingAttribute, got %v", err)
	}
	row := dataset.Row{"x": dataset.Number(0.1), "y": dataset.Text("tall")}
	if _, err := c.Predict(row); !errors.Is(err, dataset.ErrNonNumericAttribute) {
		t.Fatalf("expected ErrNonNumericAttribute, got %v", err)
	}
}

func TestRoundTripPreservesPredictions(t *testing.T) {
	ds := clusterDataset(t)
	c, err := New(ds, testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "models", "mlp.json")
	if err := c.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded.LossHistory()) != 0 {
		t.Fatalf("loss history must not be persisted")
	}
	for i, row := range ds.Rows {
		want, err := c.Scores(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := loaded.Scores(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for j := range want {
			if want[j] != got[j] {
				t.Fatalf("row %d score %d: expected %v, got %v", i, j, want[j], got[j])
			}
		}
		wantLabel, _ := c.Predict(row)
		gotLabel, _ := loaded.Predict(row)
		if wantLabel != gotLabel {
			t.Fatalf("row %d: expected %s, got %s", i, wantLabel, gotLabel)
		}
	}
}

func TestUnmarshalRejectsBadFiles(t *testing.T) {
	c, err := New(clusterDataset(t), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc["version"] = 99
	bad, _ := json.Marshal(doc)
	if _, err := Unmarshal(bad); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}

	doc["version"] = fileVersion
	doc["inputs"] = doc["inputs"].([]any)[:1]
	bad, _ = json.Marshal(doc)
	if _, err := Unmarshal(bad); !errors.Is(err, ErrLayerMismatch) {
		t.Fatalf("expected ErrLayerMismatch, got %v", err)
	}
}
