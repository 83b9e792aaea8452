package ml

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"tabularml/dataset"
)

func weatherDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	rows := []dataset.Row{
		{"Outlook": dataset.Text("sunny"), "Windy": dataset.Text("false"), "Play": dataset.Text("no")},
		{"Outlook": dataset.Text("sunny"), "Windy": dataset.Text("true"), "Play": dataset.Text("no")},
		{"Outlook": dataset.Text("overcast"), "Windy": dataset.Text("false"), "Play": dataset.Text("yes")},
	}
	ds, err := dataset.New(rows, "Play")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ds
}

func TestDecisionTreeSplitsOnLowestGini(t *testing.T) {
	tree, err := NewDecisionTree(weatherDataset(t), TreeParams{MaxDepth: 2, MinSamples: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root, ok := tree.Node(tree.Root())
	if !ok {
		t.Fatalf("expected root node")
	}
	if root.IsLeaf() || root.Attribute != "Outlook" {
		t.Fatalf("expected split on Outlook, got %+v", root)
	}
	want := map[string]string{"sunny": "no", "overcast": "yes"}
	if len(root.Edges) != len(want) {
		t.Fatalf("expected %d edges, got %d", len(want), len(root.Edges))
	}
	for _, e := range root.Edges {
		child, _ := tree.Node(e.Child)
		if !child.IsLeaf() || child.Label != want[e.Value] {
			t.Fatalf("edge %s: expected leaf %s, got %+v", e.Value, want[e.Value], child)
		}
	}
}

func TestDecisionTreeUnknownValue(t *testing.T) {
	tree, err := NewDecisionTree(weatherDataset(t), TreeParams{MaxDepth: 2, MinSamples: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, err := tree.Predict(dataset.Row{"Outlook": dataset.Text("foggy"), "Windy": dataset.Text("false")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != UnknownLabel {
		t.Fatalf("expected %s, got %s", UnknownLabel, label)
	}
	label, err = tree.Predict(dataset.Row{"Windy": dataset.Text("false")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != UnknownLabel {
		t.Fatalf("expected %s for missing attribute, got %s", UnknownLabel, label)
	}
	label, err = tree.Predict(dataset.Row{"Outlook": dataset.Text("overcast")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "yes" {
		t.Fatalf("expected yes, got %s", label)
	}
}

func TestDecisionTreePureSubsetIsLeaf(t *testing.T) {
	rows := []dataset.Row{
		{"a": dataset.Text("x"), "b": dataset.Number(1), "label": dataset.Text("same")},
		{"a": dataset.Text("y"), "b": dataset.Number(2), "label": dataset.Text("same")},
		{"a": dataset.Text("z"), "b": dataset.Number(3), "label": dataset.Text("same")},
	}
	ds, err := dataset.New(rows, "label")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree, err := NewDecisionTree(ds, TreeParams{MaxDepth: 4, MinSamples: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Nodes()) != 1 || tree.Depth() != 0 {
		t.Fatalf("expected a single leaf, got %d nodes depth %d", len(tree.Nodes()), tree.Depth())
	}
	root, _ := tree.Node(tree.Root())
	if !root.IsLeaf() || root.Label != "same" {
		t.Fatalf("expected leaf same, got %+v", root)
	}
}

func randomDataset(t *testing.T, seed int64, n int) *dataset.Dataset {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	colors := []string{"red", "green", "blue", "black"}
	classes := []string{"a", "b", "c"}
	rows := make([]dataset.Row, n)
	for i := range rows {
		rows[i] = dataset.Row{
			"color": dataset.Text(colors[rnd.Intn(len(colors))]),
			"shape": dataset.Text(fmt.Sprintf("s%d", rnd.Intn(3))),
			"size":  dataset.Number(rnd.Float64() * 10),
			"class": dataset.Text(classes[rnd.Intn(len(classes))]),
		}
	}
	ds, err := dataset.New(rows, "class")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ds
}

func TestDecisionTreeRespectsMaxDepth(t *testing.T) {
	ds := randomDataset(t, 11, 120)
	for depth := 1; depth <= 3; depth++ {
		tree, err := NewDecisionTree(ds, TreeParams{MaxDepth: depth, MinSamples: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := tree.Depth(); got > depth {
			t.Fatalf("max depth %d exceeded: %d", depth, got)
		}
	}
}

func TestDecisionTreeNumericThreshold(t *testing.T) {
	rows := make([]dataset.Row, 0, 10)
	for i := 1; i <= 10; i++ {
		label := "hot"
		if i <= 4 {
			label = "cold"
		}
		rows = append(rows, dataset.Row{"temp": dataset.Number(float64(i)), "label": dataset.Text(label)})
	}
	ds, err := dataset.New(rows, "label")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree, err := NewDecisionTree(ds, TreeParams{MaxDepth: 3, MinSamples: 1, NumericBucketCount: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root, _ := tree.Node(tree.Root())
	if !root.Numeric || math.Abs(root.Threshold-4.6) > 1e-9 {
		t.Fatalf("expected numeric split at 4.6, got %+v", root)
	}
	for temp, want := range map[float64]string{3: "cold", 4: "cold", 9: "hot"} {
		got, err := tree.Predict(dataset.Row{"temp": dataset.Number(temp)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("temp %v: expected %s, got %s", temp, want, got)
		}
	}
	got, err := tree.Predict(dataset.Row{"temp": dataset.Number(math.NaN())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hot" {
		t.Fatalf("expected missing numeric to follow the > branch, got %s", got)
	}

	for text, want := range map[string]string{"3": "cold", "": "hot", "warm": UnknownLabel} {
		got, err := tree.Predict(dataset.Row{"temp": dataset.Text(text)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("temp %q: expected %s, got %s", text, want, got)
		}
	}
}

func TestDecisionTreeMinSamplesStop(t *testing.T) {
	tree, err := NewDecisionTree(weatherDataset(t), TreeParams{MaxDepth: 5, MinSamples: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nodes := tree.Nodes()
	if len(nodes) != 1 || !nodes[0].IsLeaf() {
		t.Fatalf("expected a single leaf, got %+v", nodes)
	}
	if nodes[0].Label != "no" || nodes[0].Samples != 3 {
		t.Fatalf("expected majority leaf no over 3 rows, got %+v", nodes[0])
	}

	tree, err = NewDecisionTree(weatherDataset(t), TreeParams{MaxDepth: 5, MinSamples: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Nodes()) == 1 {
		t.Fatalf("expected a split when the row count reaches MinSamples")
	}
}

func TestDecisionTreeRejectsInvalidArena(t *testing.T) {
	tests := []struct {
		name  string
		nodes string
	}{
		{"child out of range", `[{"kind":"split","attribute":"a","edges":[{"value":"x","child":5}]}]`},
		{"self loop", `[{"kind":"split","attribute":"a","edges":[{"value":"x","child":0}]},{"kind":"leaf","label":"y"}]`},
		{"back edge", `[{"kind":"split","attribute":"a","edges":[{"value":"x","child":1}]},{"kind":"split","attribute":"b","edges":[{"value":"z","child":0}]}]`},
		{"split without edges", `[{"kind":"split","attribute":"a"}]`},
		{"leaf with edges", `[{"kind":"leaf","label":"y","edges":[{"value":"x","child":1}]},{"kind":"leaf","label":"y"}]`},
		{"numeric split with one edge", `[{"kind":"split","attribute":"a","numeric":true,"edges":[{"value":"<=","child":1}]},{"kind":"leaf","label":"y"}]`},
		{"numeric split with swapped edges", `[{"kind":"split","attribute":"a","numeric":true,"edges":[{"value":">","child":1},{"value":"<=","child":2}]},{"kind":"leaf","label":"y"},{"kind":"leaf","label":"n"}]`},
	}
	for _, tt := range tests {
		payload := []byte(`{"target":"Play","nodes":` + tt.nodes + `}`)
		if _, err := DecodeModel(ModelDecisionTree, payload); !errors.Is(err, ErrInvalidTree) {
			t.Fatalf("%s: expected ErrInvalidTree, got %v", tt.name, err)
		}
		forest := []byte(`{"target":"Play","trees":[{"target":"Play","nodes":` + tt.nodes + `}]}`)
		if _, err := DecodeModel(ModelRandomForest, forest); !errors.Is(err, ErrInvalidTree) {
			t.Fatalf("%s: expected ErrInvalidTree from forest, got %v", tt.name, err)
		}
	}

	valid := `{"target":"Play","nodes":[{"kind":"split","attribute":"a","numeric":true,"threshold":1,` +
		`"edges":[{"value":"<=","child":1},{"value":">","child":2}]},{"kind":"leaf","label":"y"},{"kind":"leaf","label":"n"}]}`
	model, err := DecodeModel(ModelDecisionTree, []byte(valid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if depth := model.(*DecisionTree).Depth(); depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}
}

func TestDecisionTreeConstructionErrors(t *testing.T) {
	if _, err := NewDecisionTree(&dataset.Dataset{Target: "x"}, DefaultTreeParams()); !errors.Is(err, dataset.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	ds := weatherDataset(t)
	ds.Target = "Temperature"
	if _, err := NewDecisionTree(ds, DefaultTreeParams()); !errors.Is(err, dataset.ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}

	ds = weatherDataset(t)
	if err := ds.Exclude("Outlook", "Windy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewDecisionTree(ds, DefaultTreeParams()); !errors.Is(err, ErrNoAttributes) {
		t.Fatalf("expected ErrNoAttributes, got %v", err)
	}
}

func TestGini(t *testing.T) {
	if got := Gini([][]string{{"a", "a"}, {"b"}}); got != 0 {
		t.Fatalf("expected pure split impurity 0, got %v", got)
	}
	// A split that does not separate anything keeps the impurity of the unsplit set.
	unsplit := 1 - (0.5*0.5 + 0.5*0.5)
	if got := Gini([][]string{{"a", "b"}, {"a", "b"}}); math.Abs(got-unsplit) > 1e-12 {
		t.Fatalf("expected %v, got %v", unsplit, got)
	}
	if got := Gini(nil); got != 0 {
		t.Fatalf("expected 0 for empty groups, got %v", got)
	}
}

func TestMajorityLabel(t *testing.T) {
	tests := []struct {
		labels []string
		want   string
	}{
		{[]string{"x", "y", "y"}, "y"},
		{[]string{"b", "a", "a", "b"}, "b"},
		{[]string{"X", "X", "X"}, "X"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := MajorityLabel(tt.labels); got != tt.want {
			t.Fatalf("MajorityLabel(%v): expected %q, got %q", tt.labels, tt.want, got)
		}
	}
}

func TestWriteDOT(t *testing.T) {
	tree, err := NewDecisionTree(weatherDataset(t), TreeParams{MaxDepth: 2, MinSamples: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	if err := tree.WriteDOT(&buf, "weather-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"digraph weather {",
		`node0 [label="Outlook"];`,
		`node1 [label="Class: no"];`,
		`node0 -> node1 [label="sunny"];`,
		`node0 -> node2 [label="overcast"];`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWalkVisitsParentsFirst(t *testing.T) {
	tree, err := NewDecisionTree(randomDataset(t, 5, 60), TreeParams{MaxDepth: 3, MinSamples: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[int]bool{}
	count := 0
	tree.Walk(func(v Visit) bool {
		if v.Parent >= 0 && !seen[v.Parent] {
			t.Fatalf("node %d visited before parent %d", v.ID, v.Parent)
		}
		seen[v.ID] = true
		count++
		return true
	})
	if count != len(tree.Nodes()) {
		t.Fatalf("expected %d visits, got %d", len(tree.Nodes()), count)
	}
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	ds := randomDataset(t, 3, 80)
	tree, err := NewDecisionTree(ds, DefaultTreeParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tree.json")
	if err := tree.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := LoadDecisionTree(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Target() != "class" || loaded.Params() != tree.Params() {
		t.Fatalf("metadata lost: %s %+v", loaded.Target(), loaded.Params())
	}
	for i, row := range ds.Rows {
		want, _ := tree.Predict(row)
		got, err := loaded.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want != got {
			t.Fatalf("row %d: expected %s, got %s", i, want, got)
		}
	}
}
