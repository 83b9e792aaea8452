package ml

import (
	"fmt"

	"tabularml/dataset"
)

// EvaluationResult summarizes a classifier on a held-out dataset. Precision, Recall and F1
// are macro averages over the classes seen in the test labels.
type EvaluationResult struct {
	Accuracy  float64                   `json:"accuracy"`
	Precision float64                   `json:"precision"`
	Recall    float64                   `json:"recall"`
	F1        float64                   `json:"f1"`
	Total     int                       `json:"total"`
	Correct   int                       `json:"correct"`
	Unknown   int                       `json:"unknown"`
	Confusion map[string]map[string]int `json:"confusion"`
}

// Evaluate runs c over every row of test. Any prediction error aborts the run.
func Evaluate(c Classifier, test *dataset.Dataset) (EvaluationResult, error) {
	if test == nil || len(test.Rows) == 0 {
		return EvaluationResult{}, dataset.ErrEmpty
	}
	res := EvaluationResult{Confusion: make(map[string]map[string]int)}
	classes := make([]string, 0)
	for i, row := range test.Rows {
		actual := test.Label(row)
		predicted, err := c.Predict(row)
		if err != nil {
			return EvaluationResult{}, fmt.Errorf("row %d: %w", i, err)
		}
		if _, ok := res.Confusion[actual]; !ok {
			res.Confusion[actual] = make(map[string]int)
			classes = append(classes, actual)
		}
		res.Confusion[actual][predicted]++
		res.Total++
		if predicted == actual {
			res.Correct++
		}
		if predicted == UnknownLabel {
			res.Unknown++
		}
	}
	res.Accuracy = float64(res.Correct) / float64(res.Total)

	for _, class := range classes {
		tp := res.Confusion[class][class]
		actualCount, predictedCount := 0, 0
		for _, n := range res.Confusion[class] {
			actualCount += n
		}
		for _, row := range res.Confusion {
			predictedCount += row[class]
		}
		var precision, recall, f1 float64
		if predictedCount > 0 {
			precision = float64(tp) / float64(predictedCount)
		}
		if actualCount > 0 {
			recall = float64(tp) / float64(actualCount)
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		res.Precision += precision
		res.Recall += recall
		res.F1 += f1
	}
	n := float64(len(classes))
	res.Precision /= n
	res.Recall /= n
	res.F1 /= n
	return res, nil
}
