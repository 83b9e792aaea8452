package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tabularml/dataset"
	"tabularml/logging"
	"tabularml/ml"
	"tabularml/ml/mlp"
	"tabularml/monitoring"
)

type options struct {
	dataPath   string
	target     string
	model      string
	testRatio  float64
	seed       int64
	maxDepth   int
	minSamples int
	buckets    int
	trees      int
	features   int
	hidden     string
	epochs     int
	lr         float64
	activation string
	exclude    string
	modelPath  string
	dotPath    string
	lossPlot   string
	encoding   string
	delimiter  string
	clean      bool
	fill       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dataPath, "data", "", "path to the CSV dataset")
	flag.StringVar(&opts.target, "target", "", "target column")
	flag.StringVar(&opts.model, "model", "tree", "model type: tree, forest or mlp")
	flag.Float64Var(&opts.testRatio, "test_ratio", 0.2, "fraction of rows held out for evaluation")
	flag.Int64Var(&opts.seed, "seed", 42, "random seed for the split, bootstrap and weights")
	flag.IntVar(&opts.maxDepth, "max_depth", 5, "max tree depth, 0 for unlimited")
	flag.IntVar(&opts.minSamples, "min_samples", 5, "min rows required to split a node")
	flag.IntVar(&opts.buckets, "buckets", 5, "equal-width buckets for numeric splits")
	flag.IntVar(&opts.trees, "trees", 10, "number of trees in the forest")
	flag.IntVar(&opts.features, "features", 0, "attributes sampled per forest tree, 0 for all")
	flag.StringVar(&opts.hidden, "hidden", "4,4", "comma separated hidden layer sizes")
	flag.IntVar(&opts.epochs, "epochs", 100, "mlp training epochs")
	flag.Float64Var(&opts.lr, "lr", 0.1, "mlp learning rate")
	flag.StringVar(&opts.activation, "activation", "relu", "mlp hidden activation")
	flag.StringVar(&opts.exclude, "exclude", "", "comma separated columns to ignore")
	flag.StringVar(&opts.modelPath, "model_path", "./models/model.json", "model output path")
	flag.StringVar(&opts.dotPath, "dot", "", "write the tree (or first forest tree) as Graphviz DOT")
	flag.StringVar(&opts.lossPlot, "loss_plot", "", "write the mlp loss curve as an image")
	flag.StringVar(&opts.encoding, "encoding", "", "input encoding, e.g. windows-1250")
	flag.StringVar(&opts.delimiter, "delimiter", ",", "field delimiter")
	flag.BoolVar(&opts.clean, "clean", false, "drop rows without a target and duplicate rows")
	flag.BoolVar(&opts.fill, "fill_missing", false, "fill missing attribute values with the median or mode")
	logLevel := flag.String("log_level", "info", "log level")
	flag.Parse()

	logger, restore, err := logging.Setup(logging.Options{Level: *logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer restore()
	defer logger.Sync()

	if err := run(opts, os.Stdout); err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
}

func run(opts options, out io.Writer) error {
	if opts.dataPath == "" || opts.target == "" {
		return fmt.Errorf("-data and -target are required")
	}
	kind, err := ml.ParseModelType(opts.model)
	if err != nil {
		return err
	}

	loadOpts := dataset.LoadOptions{Target: opts.target, Encoding: opts.encoding}
	if opts.delimiter != "" {
		loadOpts.Delimiter = []rune(opts.delimiter)[0]
	}
	ds, err := dataset.LoadFile(opts.dataPath, loadOpts)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	if err := ds.Exclude(splitList(opts.exclude)...); err != nil {
		return err
	}
	if opts.clean {
		var stats dataset.CleaningStats
		ds, _, stats, err = dataset.NewCleaner(opts.target).Clean(ds)
		if err != nil {
			return fmt.Errorf("failed to clean dataset: %w", err)
		}
		fmt.Fprintf(out, "cleaning: %d rows kept, %d rejected %v\n", stats.Passed, stats.Rejected, stats.Issues)
	}
	if opts.fill {
		var filled int
		if ds, filled, err = ds.FillMissing(); err != nil {
			return fmt.Errorf("failed to fill missing values: %w", err)
		}
		fmt.Fprintf(out, "filled %d missing values\n", filled)
	}
	train, test, err := ds.Split(opts.testRatio, opts.seed)
	if err != nil {
		return err
	}
	zap.L().Info("dataset loaded",
		zap.String("path", opts.dataPath),
		zap.Int("train", len(train.Rows)),
		zap.Int("test", len(test.Rows)))

	treeParams := ml.TreeParams{MaxDepth: opts.maxDepth, MinSamples: opts.minSamples, NumericBucketCount: opts.buckets}
	var model interface {
		ml.Classifier
		Save(path string) error
	}
	switch kind {
	case ml.ModelDecisionTree:
		model, err = ml.NewDecisionTree(train, treeParams)
	case ml.ModelRandomForest:
		model, err = ml.NewRandomForest(train, ml.ForestParams{
			TreeCount:          opts.trees,
			FeatureSampleCount: opts.features,
			Tree:               treeParams,
			RandomSeed:         opts.seed,
		})
	case ml.ModelMLP:
		hidden, perr := parseHidden(opts.hidden)
		if perr != nil {
			return perr
		}
		model, err = mlp.New(train, mlp.Params{
			Hidden:           hidden,
			LearningRate:     opts.lr,
			Epochs:           opts.epochs,
			HiddenActivation: opts.activation,
			Seed:             opts.seed,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to train model: %w", err)
	}

	evalSet := test
	if len(test.Rows) == 0 {
		evalSet = train
	}
	eval, err := ml.Evaluate(model, evalSet)
	if err != nil {
		return fmt.Errorf("failed to evaluate model: %w", err)
	}
	printEvaluation(out, eval)

	if err := model.Save(opts.modelPath); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	fmt.Fprintf(out, "model saved to %s\n", opts.modelPath)

	if opts.dotPath != "" {
		if err := exportDOT(model, opts.dotPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "tree written to %s\n", opts.dotPath)
	}
	if opts.lossPlot != "" {
		net, ok := model.(*mlp.Classifier)
		if !ok {
			return fmt.Errorf("-loss_plot requires -model mlp")
		}
		if err := monitoring.PlotLoss(net.LossHistory(), "Training loss", opts.lossPlot); err != nil {
			return fmt.Errorf("failed to plot loss: %w", err)
		}
		fmt.Fprintf(out, "loss curve written to %s\n", opts.lossPlot)
	}
	return nil
}

func exportDOT(model ml.Classifier, path string) error {
	var tree *ml.DecisionTree
	switch m := model.(type) {
	case *ml.DecisionTree:
		tree = m
	case *ml.RandomForest:
		tree = m.Trees()[0]
	default:
		return fmt.Errorf("-dot requires a tree based model")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return tree.WriteDOT(f, name)
}

func printEvaluation(out io.Writer, eval ml.EvaluationResult) {
	fmt.Fprintf(out, "accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f (%d/%d correct, %d unknown)\n",
		eval.Accuracy, eval.Precision, eval.Recall, eval.F1, eval.Correct, eval.Total, eval.Unknown)

	actual := make([]string, 0, len(eval.Confusion))
	for class := range eval.Confusion {
		actual = append(actual, class)
	}
	sort.Strings(actual)
	for _, class := range actual {
		predicted := make([]string, 0, len(eval.Confusion[class]))
		for p := range eval.Confusion[class] {
			predicted = append(predicted, p)
		}
		sort.Strings(predicted)
		cells := make([]string, len(predicted))
		for i, p := range predicted {
			cells[i] = fmt.Sprintf("%s=%d", p, eval.Confusion[class][p])
		}
		fmt.Fprintf(out, "  %s -> %s\n", class, strings.Join(cells, " "))
	}
}

func parseHidden(s string) ([]int, error) {
	parts := splitList(s)
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid hidden layer size %q", p)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
