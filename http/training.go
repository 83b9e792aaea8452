package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"tabularml/config"
	"tabularml/dataset"
	"tabularml/db"
	"tabularml/ml"
	"tabularml/ml/mlp"
	"tabularml/monitoring"
)

var errBadRequest = errors.New("bad request")

// API carries the dependencies shared by the handlers.
type API struct {
	store    *ModelStore
	hub      *monitoring.Hub
	metrics  *monitoring.MetricsCollector
	defaults atomic.Pointer[config.Training]
}

// NewAPI wires the handlers. hub may be nil, in which case no events are published and the
// websocket route is not registered.
func NewAPI(store *ModelStore, hub *monitoring.Hub, metrics *monitoring.MetricsCollector, defaults config.Training) *API {
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}
	a := &API{store: store, hub: hub, metrics: metrics}
	a.SetTrainingDefaults(defaults)
	return a
}

// SetTrainingDefaults swaps the defaults used by later training requests.
func (a *API) SetTrainingDefaults(t config.Training) {
	a.defaults.Store(&t)
}

// TrainingDefaults returns the defaults currently applied to training requests.
func (a *API) TrainingDefaults() config.Training {
	return *a.defaults.Load()
}

// TrainRequest describes one training run. Parameter blocks are decoded over the
// configured defaults, so a partial block only overrides the fields it names.
type TrainRequest struct {
	Name         string          `json:"name"`
	DatasetPath  string          `json:"dataset_path"`
	Target       string          `json:"target"`
	Delimiter    string          `json:"delimiter,omitempty"`
	Encoding     string          `json:"encoding,omitempty"`
	TestFraction *float64        `json:"test_fraction,omitempty"`
	Seed         *int64          `json:"seed,omitempty"`
	Exclude      []string        `json:"exclude,omitempty"`
	Clean        bool            `json:"clean,omitempty"`
	FillMissing  bool            `json:"fill_missing,omitempty"`
	Tree         json.RawMessage `json:"tree,omitempty"`
	Forest       json.RawMessage `json:"forest,omitempty"`
	MLP          json.RawMessage `json:"mlp,omitempty"`
}

// TrainResult is the response to a training request.
type TrainResult struct {
	Name            string              `json:"name"`
	Type            ml.ModelType        `json:"type"`
	Target          string              `json:"target"`
	Evaluation      ml.EvaluationResult `json:"evaluation"`
	TrainRows       int                 `json:"train_rows"`
	TestRows        int                 `json:"test_rows"`
	TrainingSeconds float64             `json:"training_seconds"`
	Loss            []float64           `json:"loss,omitempty"`
	Cleaning        *CleaningReport     `json:"cleaning,omitempty"`
}

// CleaningReport summarizes the optional preprocessing of a training request.
type CleaningReport struct {
	dataset.CleaningStats
	Filled     int             `json:"filled"`
	Rejections []dataset.Issue `json:"rejections,omitempty"`
}

func (req TrainRequest) validate() error {
	switch {
	case req.Name == "":
		return fmt.Errorf("%w: name is required", errBadRequest)
	case req.DatasetPath == "":
		return fmt.Errorf("%w: dataset_path is required", errBadRequest)
	case req.Target == "":
		return fmt.Errorf("%w: target is required", errBadRequest)
	case utf8.RuneCountInString(req.Delimiter) > 1:
		return fmt.Errorf("%w: delimiter must be a single character", errBadRequest)
	}
	return nil
}

// trainModel loads the dataset, holds out a test split, trains the requested model and
// evaluates it. With no test rows the training rows are evaluated instead.
func trainModel(kind ml.ModelType, req TrainRequest, defaults config.Training) (*TrainResult, ml.Classifier, error) {
	if err := req.validate(); err != nil {
		return nil, nil, err
	}
	opts := dataset.LoadOptions{Target: req.Target, Encoding: req.Encoding}
	if req.Delimiter != "" {
		opts.Delimiter, _ = utf8.DecodeRuneInString(req.Delimiter)
	}
	ds, err := dataset.LoadFile(req.DatasetPath, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("load dataset: %w", err)
	}
	if err := ds.Exclude(req.Exclude...); err != nil {
		return nil, nil, err
	}
	var report *CleaningReport
	if req.Clean || req.FillMissing {
		report = &CleaningReport{}
		if req.Clean {
			ds, report.Rejections, report.CleaningStats, err = dataset.NewCleaner(req.Target).Clean(ds)
			if err != nil {
				return nil, nil, fmt.Errorf("clean dataset: %w", err)
			}
		}
		if req.FillMissing {
			if ds, report.Filled, err = ds.FillMissing(); err != nil {
				return nil, nil, fmt.Errorf("fill missing: %w", err)
			}
		}
	}

	fraction, seed := defaults.TestFraction, defaults.Seed
	if req.TestFraction != nil {
		fraction = *req.TestFraction
	}
	if req.Seed != nil {
		seed = *req.Seed
	}
	train, test, err := ds.Split(fraction, seed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	start := time.Now()
	var model ml.Classifier
	var loss []float64
	switch kind {
	case ml.ModelDecisionTree:
		params := defaults.Tree
		if err = overlayParams(req.Tree, &params); err == nil {
			model, err = ml.NewDecisionTree(train, params)
		}
	case ml.ModelRandomForest:
		params := defaults.Forest
		if err = overlayParams(req.Forest, &params); err == nil {
			model, err = ml.NewRandomForest(train, params)
		}
	case ml.ModelMLP:
		params := defaults.MLP
		params.Hidden = append([]int(nil), params.Hidden...)
		if err = overlayParams(req.MLP, &params); err == nil {
			var net *mlp.Classifier
			if net, err = mlp.New(train, params); err == nil {
				model, loss = net, net.LossHistory()
			}
		}
	default:
		err = fmt.Errorf("%w: %q", ml.ErrUnsupportedModel, kind)
	}
	if err != nil {
		return nil, nil, err
	}
	elapsed := time.Since(start)

	evalSet := test
	if len(test.Rows) == 0 {
		evalSet = train
	}
	eval, err := ml.Evaluate(model, evalSet)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate: %w", err)
	}

	return &TrainResult{
		Name:            req.Name,
		Type:            kind,
		Target:          req.Target,
		Evaluation:      eval,
		TrainRows:       len(train.Rows),
		TestRows:        len(test.Rows),
		TrainingSeconds: elapsed.Seconds(),
		Loss:            loss,
		Cleaning:        report,
	}, model, nil
}

// overlayParams decodes a request parameter block over dst, so fields the block leaves
// out keep their configured defaults.
func overlayParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: invalid parameters: %v", errBadRequest, err)
	}
	return nil
}

// train runs a training request end to end: events, registry, training log and metrics.
func (a *API) train(kind ml.ModelType, req TrainRequest) (*TrainResult, error) {
	a.publish(monitoring.TrainingStarted, map[string]any{"name": req.Name, "type": kind})

	result, model, err := trainModel(kind, req, a.TrainingDefaults())
	if err != nil {
		zap.L().Warn("training failed", zap.String("name", req.Name), zap.String("type", string(kind)), zap.Error(err))
		a.publish(monitoring.TrainingFailed, map[string]any{"name": req.Name, "type": kind, "error": err.Error()})
		return nil, err
	}
	if _, err := a.store.Put(req.Name, req.Target, model); err != nil {
		return nil, err
	}
	entry := db.TrainingLog{
		ModelName:  result.Name,
		ModelType:  string(result.Type),
		Accuracy:   result.Evaluation.Accuracy,
		Precision:  result.Evaluation.Precision,
		Recall:     result.Evaluation.Recall,
		F1:         result.Evaluation.F1,
		TrainedAt:  time.Now().UTC(),
		DataPoints: result.TrainRows,
		TestPoints: result.TestRows,
		Duration:   time.Duration(result.TrainingSeconds * float64(time.Second)),
	}
	if err := db.SaveTrainingLog(entry); err != nil {
		zap.L().Warn("save training log failed", zap.String("name", req.Name), zap.Error(err))
	}

	labels := map[string]string{"type": string(kind), "model": req.Name}
	a.metrics.Observe(monitoring.MetricTrainingSeconds, result.TrainingSeconds, labels)
	a.metrics.Observe(monitoring.MetricTrainingAccuracy, result.Evaluation.Accuracy, labels)

	zap.L().Info("model trained",
		zap.String("name", result.Name),
		zap.String("type", string(kind)),
		zap.Float64("accuracy", result.Evaluation.Accuracy),
		zap.Float64("seconds", result.TrainingSeconds))
	a.publish(monitoring.TrainingFinished, result)
	return result, nil
}

func (a *API) publish(t monitoring.EventType, data any) {
	if a.hub == nil {
		return
	}
	if err := a.hub.Publish(t, data); err != nil {
		zap.L().Warn("publish event failed", zap.String("type", string(t)), zap.Error(err))
	}
}
