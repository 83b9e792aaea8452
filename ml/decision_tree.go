package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"tabularml/dataset"
)

const (
	EdgeLessEqual = "<="
	EdgeGreater   = ">"
)

// TreeParams controls induction. MaxDepth <= 0 means no depth limit and
// MinSamples <= 0 disables the minimum-samples rule.
type TreeParams struct {
	MaxDepth           int `json:"max_depth" yaml:"max_depth"`
	MinSamples         int `json:"min_samples" yaml:"min_samples"`
	NumericBucketCount int `json:"numeric_bucket_count" yaml:"numeric_bucket_count"`
}

// DefaultTreeParams returns MaxDepth 5, MinSamples 5 and 5 numeric buckets.
func DefaultTreeParams() TreeParams {
	return TreeParams{MaxDepth: 5, MinSamples: 5, NumericBucketCount: 5}
}

func (p TreeParams) withDefaults() TreeParams {
	if p.NumericBucketCount <= 1 {
		p.NumericBucketCount = DefaultTreeParams().NumericBucketCount
	}
	return p
}

// NodeKind tags a TreeNode as a leaf or a split.
type NodeKind int

const (
	LeafNode NodeKind = iota
	SplitNode
)

func (k NodeKind) MarshalText() ([]byte, error) {
	switch k {
	case LeafNode:
		return []byte("leaf"), nil
	case SplitNode:
		return []byte("split"), nil
	}
	return nil, fmt.Errorf("invalid node kind %d", int(k))
}

func (k *NodeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "leaf":
		*k = LeafNode
	case "split":
		*k = SplitNode
	default:
		return fmt.Errorf("invalid node kind %q", string(text))
	}
	return nil
}

// Edge links a split node to a child. Value is the attribute value for categorical
// splits, EdgeLessEqual or EdgeGreater for numeric ones.
type Edge struct {
	Value string `json:"value"`
	Child int    `json:"child"`
}

// TreeNode is either a leaf carrying Label, or a split on Attribute with at least one edge.
type TreeNode struct {
	Kind      NodeKind `json:"kind"`
	Label     string   `json:"label,omitempty"`
	Attribute string   `json:"attribute,omitempty"`
	Numeric   bool     `json:"numeric,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	Edges     []Edge   `json:"edges,omitempty"`
	Samples   int      `json:"samples"`
}

// IsLeaf reports whether n carries a label.
func (n TreeNode) IsLeaf() bool {
	return n.Kind == LeafNode
}

// child picks the edge for v. On numeric splits a missing value takes the EdgeGreater
// branch, as during training, while text that is not a number has no branch.
func (n TreeNode) child(v dataset.Value) (int, bool) {
	key := v.String()
	if n.Numeric {
		f := v.Float()
		if math.IsNaN(f) && v.Kind == dataset.Categorical && !v.IsMissing() {
			return 0, false
		}
		key = EdgeGreater
		if f <= n.Threshold {
			key = EdgeLessEqual
		}
	}
	for _, e := range n.Edges {
		if e.Value == key {
			return e.Child, true
		}
	}
	return 0, false
}

// DecisionTree is a Gini-induced classification tree stored as an arena of nodes.
// The root is node 0.
type DecisionTree struct {
	params TreeParams
	target string
	nodes  []TreeNode
}

type partition struct {
	value  string
	rows   []dataset.Row
	labels []string
}

type candidate struct {
	attribute string
	numeric   bool
	threshold float64
	groups    []partition
	impurity  float64
}

// NewDecisionTree trains a tree on ds. Training is synchronous.
func NewDecisionTree(ds *dataset.Dataset, params TreeParams) (*DecisionTree, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, dataset.ErrEmpty
	}
	if _, ok := ds.TargetMeta(); !ok {
		return nil, fmt.Errorf("%w: %q", dataset.ErrTargetNotFound, ds.Target)
	}
	attrs := ds.ModelAttributes()
	if len(attrs) == 0 {
		return nil, ErrNoAttributes
	}

	dt := &DecisionTree{params: params.withDefaults(), target: ds.Target}
	labels := make([]string, len(ds.Rows))
	for i, row := range ds.Rows {
		labels[i] = ds.Label(row)
	}
	dt.build(ds.Rows, labels, attrs, 0)

	zap.L().Debug("decision tree trained",
		zap.Int("rows", len(ds.Rows)),
		zap.Int("nodes", len(dt.nodes)),
		zap.Int("depth", dt.Depth()))
	return dt, nil
}

func (dt *DecisionTree) build(rows []dataset.Row, labels []string, attrs []dataset.AttributeMeta, depth int) int {
	if isPure(labels) {
		return dt.addLeaf(labels[0], len(labels))
	}
	majority := MajorityLabel(labels)
	if len(attrs) == 0 ||
		(dt.params.MinSamples > 0 && len(labels) < dt.params.MinSamples) ||
		(dt.params.MaxDepth > 0 && depth >= dt.params.MaxDepth) {
		return dt.addLeaf(majority, len(labels))
	}

	best, ok := dt.bestSplit(rows, labels, attrs)
	if !ok {
		return dt.addLeaf(majority, len(labels))
	}

	id := dt.addNode(TreeNode{
		Kind:      SplitNode,
		Attribute: best.attribute,
		Numeric:   best.numeric,
		Threshold: best.threshold,
		Samples:   len(labels),
	})
	remaining := withoutAttribute(attrs, best.attribute)
	edges := make([]Edge, 0, len(best.groups))
	for _, g := range best.groups {
		var child int
		if len(g.rows) == 0 {
			child = dt.addLeaf(majority, 0)
		} else {
			child = dt.build(g.rows, g.labels, remaining, depth+1)
		}
		edges = append(edges, Edge{Value: g.value, Child: child})
	}
	dt.nodes[id].Edges = edges
	return id
}

func (dt *DecisionTree) addNode(node TreeNode) int {
	dt.nodes = append(dt.nodes, node)
	return len(dt.nodes) - 1
}

func (dt *DecisionTree) addLeaf(label string, samples int) int {
	return dt.addNode(TreeNode{Kind: LeafNode, Label: label, Samples: samples})
}

// bestSplit picks the candidate with the lowest weighted Gini impurity. Ties keep the
// earlier candidate.
func (dt *DecisionTree) bestSplit(rows []dataset.Row, labels []string, attrs []dataset.AttributeMeta) (candidate, bool) {
	best := candidate{impurity: math.Inf(1)}
	found := false
	for _, attr := range attrs {
		var candidates []candidate
		if attr.Kind == dataset.Numeric {
			candidates = numericCandidates(attr.Name, rows, labels, dt.params.NumericBucketCount)
		} else {
			candidates = []candidate{categoricalCandidate(attr.Name, rows, labels)}
		}
		for _, c := range candidates {
			if c.impurity < best.impurity {
				best, found = c, true
			}
		}
	}
	return best, found
}

func categoricalCandidate(name string, rows []dataset.Row, labels []string) candidate {
	index := make(map[string]int)
	groups := make([]partition, 0)
	for i, row := range rows {
		key := row[name].String()
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, partition{value: key})
		}
		groups[gi].rows = append(groups[gi].rows, row)
		groups[gi].labels = append(groups[gi].labels, labels[i])
	}
	return candidate{attribute: name, groups: groups, impurity: impurityOf(groups)}
}

// numericCandidates cuts the observed range into equal-width buckets and proposes every
// inner bucket edge as a binary threshold.
func numericCandidates(name string, rows []dataset.Row, labels []string, buckets int) []candidate {
	values := make([]float64, len(rows))
	observed := make([]float64, 0, len(rows))
	for i, row := range rows {
		values[i] = math.NaN()
		if v, ok := row[name]; ok {
			values[i] = v.Float()
		}
		if !math.IsNaN(values[i]) {
			observed = append(observed, values[i])
		}
	}
	if len(observed) == 0 {
		return nil
	}
	lo, hi := floats.Min(observed), floats.Max(observed)
	if lo == hi {
		return nil
	}

	edges := floats.Span(make([]float64, buckets+1), lo, hi)
	candidates := make([]candidate, 0, buckets-1)
	for _, threshold := range edges[1:buckets] {
		le := partition{value: EdgeLessEqual}
		gt := partition{value: EdgeGreater}
		for i, row := range rows {
			if values[i] <= threshold {
				le.rows = append(le.rows, row)
				le.labels = append(le.labels, labels[i])
			} else {
				gt.rows = append(gt.rows, row)
				gt.labels = append(gt.labels, labels[i])
			}
		}
		groups := []partition{le, gt}
		candidates = append(candidates, candidate{
			attribute: name,
			numeric:   true,
			threshold: threshold,
			groups:    groups,
			impurity:  impurityOf(groups),
		})
	}
	return candidates
}

func impurityOf(groups []partition) float64 {
	labelGroups := make([][]string, len(groups))
	for i, g := range groups {
		labelGroups[i] = g.labels
	}
	return Gini(labelGroups)
}

func withoutAttribute(attrs []dataset.AttributeMeta, name string) []dataset.AttributeMeta {
	out := make([]dataset.AttributeMeta, 0, len(attrs))
	for _, a := range attrs {
		if a.Name != name {
			out = append(out, a)
		}
	}
	return out
}

// Predict walks the tree. An attribute missing from row, a value with no matching
// branch, or non-numeric text at a numeric split yields UnknownLabel rather than an error.
func (dt *DecisionTree) Predict(row dataset.Row) (string, error) {
	if len(dt.nodes) == 0 {
		return "", ErrNotTrained
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf() {
			return node.Label, nil
		}
		v, ok := row[node.Attribute]
		if !ok {
			return UnknownLabel, nil
		}
		next, ok := node.child(v)
		if !ok {
			return UnknownLabel, nil
		}
		if next <= idx || next >= len(dt.nodes) {
			return "", fmt.Errorf("%w: node %d points to %d", ErrInvalidTree, idx, next)
		}
		idx = next
	}
}

// Params returns the parameters the tree was trained with.
func (dt *DecisionTree) Params() TreeParams {
	return dt.params
}

// Target returns the name of the predicted column.
func (dt *DecisionTree) Target() string {
	return dt.target
}

type treeFile struct {
	Params TreeParams `json:"params"`
	Target string     `json:"target"`
	Nodes  []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(treeFile{Params: dt.params, Target: dt.target, Nodes: dt.nodes})
}

// UnmarshalJSON restores a tree and rejects arenas that break the node layout.
func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var file treeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if len(file.Nodes) == 0 {
		return ErrNotTrained
	}
	if err := validateNodes(file.Nodes); err != nil {
		return err
	}
	dt.params = file.Params
	dt.target = file.Target
	dt.nodes = file.Nodes
	return nil
}

// validateNodes checks the arena layout NewDecisionTree produces: leaves have no edges,
// splits have at least one edge, numeric splits exactly EdgeLessEqual then EdgeGreater,
// and every child id is greater than its parent's and inside the arena.
func validateNodes(nodes []TreeNode) error {
	for id, n := range nodes {
		switch n.Kind {
		case LeafNode:
			if len(n.Edges) != 0 {
				return fmt.Errorf("%w: leaf %d has edges", ErrInvalidTree, id)
			}
			continue
		case SplitNode:
		default:
			return fmt.Errorf("%w: node %d has kind %d", ErrInvalidTree, id, int(n.Kind))
		}
		if len(n.Edges) == 0 {
			return fmt.Errorf("%w: split %d has no edges", ErrInvalidTree, id)
		}
		if n.Numeric && (len(n.Edges) != 2 || n.Edges[0].Value != EdgeLessEqual || n.Edges[1].Value != EdgeGreater) {
			return fmt.Errorf("%w: numeric split %d needs %q and %q edges", ErrInvalidTree, id, EdgeLessEqual, EdgeGreater)
		}
		for _, e := range n.Edges {
			if e.Child <= id || e.Child >= len(nodes) {
				return fmt.Errorf("%w: node %d points to %d", ErrInvalidTree, id, e.Child)
			}
		}
	}
	return nil
}

// Save writes the tree as JSON with mode 0600.
func (dt *DecisionTree) Save(path string) error {
	payload, err := json.Marshal(dt)
	if err != nil {
		return err
	}
	return writeModelFile(path, payload)
}

// LoadDecisionTree reads a tree written by Save.
func LoadDecisionTree(path string) (*DecisionTree, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dt := &DecisionTree{}
	if err := json.Unmarshal(payload, dt); err != nil {
		return nil, err
	}
	return dt, nil
}

func writeModelFile(path string, payload []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, payload, 0o600)
}
