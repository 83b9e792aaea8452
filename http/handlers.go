package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"tabularml/dataset"
	"tabularml/db"
	"tabularml/ml"
	"tabularml/ml/mlp"
	"tabularml/monitoring"
)

// RegisterHandlers mounts the REST routes on mux.
func RegisterHandlers(mux *http.ServeMux, api *API) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/train/{kind}", api.handleTrain)
	mux.HandleFunc("POST /api/predict/{name}", api.handlePredict)
	mux.HandleFunc("GET /api/models", api.handleListModels)
	mux.HandleFunc("DELETE /api/models/{name}", api.handleDeleteModel)
	mux.HandleFunc("GET /api/models/{name}/dot", api.handleModelDOT)
	mux.HandleFunc("GET /api/models/{name}/loss", api.handleModelLoss)
	mux.HandleFunc("GET /api/training/log", handleTrainingLog)
	mux.HandleFunc("GET /api/metrics", api.handleMetrics)
	mux.HandleFunc("GET /api/metrics/{name}", api.handleMetric)
	if api.hub != nil {
		mux.Handle("GET /api/ws/training", api.hub)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrModelNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, ml.ErrUnsupportedModel),
		errors.Is(err, dataset.ErrEmpty),
		errors.Is(err, dataset.ErrTargetNotFound),
		errors.Is(err, dataset.ErrUnknownAttribute),
		errors.Is(err, dataset.ErrMissingAttribute),
		errors.Is(err, dataset.ErrNonNumericAttribute),
		errors.Is(err, ml.ErrNoAttributes),
		errors.Is(err, mlp.ErrNumericTarget),
		errors.Is(err, mlp.ErrNoInputs),
		errors.Is(err, mlp.ErrNoClasses),
		errors.Is(err, mlp.ErrInvalidParams),
		errors.Is(err, mlp.ErrUnknownActivation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *API) handleTrain(w http.ResponseWriter, r *http.Request) {
	kind, err := ml.ParseModelType(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	result, err := a.train(kind, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type predictRequest struct {
	Row map[string]any `json:"row"`
}

type predictResponse struct {
	Model  string             `json:"model"`
	Label  string             `json:"label"`
	Scores map[string]float64 `json:"scores,omitempty"`
}

// rowFromJSON converts decoded JSON values: numbers become numeric values, strings and
// booleans categorical ones. Nulls are left out of the row.
func rowFromJSON(in map[string]any) (dataset.Row, error) {
	row := make(dataset.Row, len(in))
	for name, v := range in {
		switch v := v.(type) {
		case nil:
		case float64:
			row[name] = dataset.Number(v)
		case string:
			row[name] = dataset.Text(v)
		case bool:
			row[name] = dataset.Text(strconv.FormatBool(v))
		default:
			return nil, fmt.Errorf("%w: attribute %q has unsupported type %T", errBadRequest, name, v)
		}
	}
	return row, nil
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	row, err := rowFromJSON(req.Row)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	model, err := a.store.Get(name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	labels := map[string]string{"model": name}
	label, err := model.Predict(row)
	if err != nil {
		a.metrics.Inc(monitoring.MetricPredictionErrors, labels)
		writeError(w, statusFor(err), err)
		return
	}
	a.metrics.Inc(monitoring.MetricPredictions, labels)

	resp := predictResponse{Model: name, Label: label}
	if net, ok := model.(*mlp.Classifier); ok {
		scores, err := net.Scores(row)
		if err == nil {
			resp.Scores = make(map[string]float64, len(scores))
			for i, class := range net.Classes() {
				resp.Scores[class] = scores[i]
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := a.store.List()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (a *API) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := a.store.Delete(name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	a.publish(monitoring.ModelDeleted, map[string]string{"name": name})
	w.WriteHeader(http.StatusNoContent)
}

// handleModelDOT exports a decision tree, or tree ?tree=i of a forest, as Graphviz DOT.
func (a *API) handleModelDOT(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	model, err := a.store.Get(name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var tree *ml.DecisionTree
	switch m := model.(type) {
	case *ml.DecisionTree:
		tree = m
	case *ml.RandomForest:
		idx := 0
		if s := r.URL.Query().Get("tree"); s != "" {
			if idx, err = strconv.Atoi(s); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid tree index %q", s))
				return
			}
		}
		trees := m.Trees()
		if idx < 0 || idx >= len(trees) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("tree index %d out of range [0,%d)", idx, len(trees)))
			return
		}
		tree = trees[idx]
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("model %q is not tree based", name))
		return
	}

	w.Header().Set("Content-Type", "text/vnd.graphviz")
	if err := tree.WriteDOT(w, name); err != nil {
		zap.L().Warn("write dot failed", zap.String("model", name), zap.Error(err))
	}
}

// handleModelLoss renders the loss curve of an MLP trained by this process.
func (a *API) handleModelLoss(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	model, err := a.store.Get(name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	net, ok := model.(*mlp.Classifier)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("model %q is not an mlp", name))
		return
	}
	loss := net.LossHistory()
	if len(loss) == 0 {
		writeError(w, http.StatusNotFound, monitoring.ErrNoLoss)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := monitoring.WriteLossPNG(w, loss, name); err != nil {
		zap.L().Warn("write loss plot failed", zap.String("model", name), zap.Error(err))
	}
}

func handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil {
			limit = l
		}
	}
	logs, err := db.LoadTrainingLog(limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	summaries := make([]monitoring.MetricSummary, 0)
	for _, name := range a.metrics.Names() {
		if s, err := a.metrics.Summary(name); err == nil {
			summaries = append(summaries, s)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": a.metrics.Uptime().Seconds(),
		"cached_models":  a.store.Cached(),
		"metrics":        summaries,
	})
}

func (a *API) handleMetric(w http.ResponseWriter, r *http.Request) {
	s, err := a.metrics.Summary(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
