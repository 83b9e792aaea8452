package ml

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"go.uber.org/zap"

	"tabularml/dataset"
)

// ForestParams controls the ensemble. FeatureSampleCount 0 means every eligible
// attribute is offered to every tree.
type ForestParams struct {
	TreeCount          int        `json:"tree_count" yaml:"tree_count"`
	FeatureSampleCount int        `json:"feature_sample_count" yaml:"feature_sample_count"`
	Tree               TreeParams `json:"tree" yaml:"tree"`
	RandomSeed         int64      `json:"random_seed" yaml:"random_seed"`
}

// DefaultForestParams returns 10 trees over all attributes with seed 42.
func DefaultForestParams() ForestParams {
	return ForestParams{
		TreeCount:  10,
		Tree:       DefaultTreeParams(),
		RandomSeed: 42,
	}
}

// RandomForest is a bagged ensemble of decision trees voting by majority.
type RandomForest struct {
	params ForestParams
	target string
	trees  []*DecisionTree
}

// NewRandomForest trains params.TreeCount trees. Every random draw comes from a single
// generator seeded with params.RandomSeed, so the same seed yields the same forest.
func NewRandomForest(ds *dataset.Dataset, params ForestParams) (*RandomForest, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, dataset.ErrEmpty
	}
	if _, ok := ds.TargetMeta(); !ok {
		return nil, fmt.Errorf("%w: %q", dataset.ErrTargetNotFound, ds.Target)
	}
	eligible := ds.ModelAttributes()
	if len(eligible) == 0 {
		return nil, ErrNoAttributes
	}
	if params.TreeCount <= 0 {
		params.TreeCount = DefaultForestParams().TreeCount
	}
	if params.FeatureSampleCount < 0 {
		return nil, fmt.Errorf("feature sample count must not be negative, got %d", params.FeatureSampleCount)
	}

	rnd := rand.New(rand.NewSource(params.RandomSeed))
	rf := &RandomForest{params: params, target: ds.Target, trees: make([]*DecisionTree, 0, params.TreeCount)}
	for i := 0; i < params.TreeCount; i++ {
		sample := bootstrapRows(ds.Rows, rnd)
		if len(sample) == 0 {
			return nil, ErrEmptySample
		}
		names := sampleAttributes(eligible, params.FeatureSampleCount, rnd)
		subset, err := ds.WithRows(sample).WithAttributes(names)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		tree, err := NewDecisionTree(subset, params.Tree)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		rf.trees = append(rf.trees, tree)
	}

	zap.L().Debug("random forest trained",
		zap.Int("trees", len(rf.trees)),
		zap.Int("rows", len(ds.Rows)),
		zap.Int64("seed", params.RandomSeed))
	return rf, nil
}

// bootstrapRows draws len(rows) rows uniformly with replacement.
func bootstrapRows(rows []dataset.Row, rnd *rand.Rand) []dataset.Row {
	sample := make([]dataset.Row, len(rows))
	for j := range sample {
		sample[j] = rows[rnd.Intn(len(rows))]
	}
	return sample
}

func sampleAttributes(eligible []dataset.AttributeMeta, k int, rnd *rand.Rand) []string {
	if k == 0 {
		names := make([]string, len(eligible))
		for i, a := range eligible {
			names[i] = a.Name
		}
		return names
	}
	if k > len(eligible) {
		k = len(eligible)
	}
	names := make([]string, 0, k)
	for _, idx := range rnd.Perm(len(eligible))[:k] {
		names = append(names, eligible[idx].Name)
	}
	return names
}

// Predict asks every tree and returns the label with the most votes.
func (rf *RandomForest) Predict(row dataset.Row) (string, error) {
	if len(rf.trees) == 0 {
		return "", ErrNotTrained
	}
	votes := make([]string, 0, len(rf.trees))
	for _, tree := range rf.trees {
		label, err := tree.Predict(row)
		if err != nil {
			return "", err
		}
		votes = append(votes, label)
	}
	return MajorityLabel(votes), nil
}

// Trees returns the ensemble members in training order.
func (rf *RandomForest) Trees() []*DecisionTree {
	return append([]*DecisionTree(nil), rf.trees...)
}

// Params returns the parameters the forest was trained with.
func (rf *RandomForest) Params() ForestParams {
	return rf.params
}

type forestFile struct {
	Params ForestParams    `json:"params"`
	Target string          `json:"target"`
	Trees  []*DecisionTree `json:"trees"`
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	if len(rf.trees) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(forestFile{Params: rf.params, Target: rf.target, Trees: rf.trees})
}

func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var file forestFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if len(file.Trees) == 0 {
		return ErrNotTrained
	}
	rf.params = file.Params
	rf.target = file.Target
	rf.trees = file.Trees
	return nil
}

// Save writes the forest as JSON.
func (rf *RandomForest) Save(path string) error {
	payload, err := json.Marshal(rf)
	if err != nil {
		return err
	}
	return writeModelFile(path, payload)
}

// LoadRandomForest reads a forest written by Save.
func LoadRandomForest(path string) (*RandomForest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rf := &RandomForest{}
	if err := json.Unmarshal(payload, rf); err != nil {
		return nil, err
	}
	return rf, nil
}
