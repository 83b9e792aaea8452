package ml

// MajorityLabel returns the most frequent label. Ties go to the label encountered first.
func MajorityLabel(labels []string) string {
	order, counts := countLabels(labels)
	best, bestCount := "", 0
	for _, label := range order {
		if counts[label] > bestCount {
			best, bestCount = label, counts[label]
		}
	}
	return best
}

// Gini returns the weighted Gini impurity of a partition:
// sum over groups of |G|/|S| * (1 - sum over classes of p(c|G)^2).
func Gini(groups [][]string) float64 {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total == 0 {
		return 0
	}
	impurity := 0.0
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		order, counts := countLabels(g)
		purity := 0.0
		for _, label := range order {
			p := float64(counts[label]) / float64(len(g))
			purity += p * p
		}
		impurity += float64(len(g)) / float64(total) * (1 - purity)
	}
	return impurity
}

// countLabels keeps first-appearance order so float sums are reproducible.
func countLabels(labels []string) ([]string, map[string]int) {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, label := range labels {
		if _, ok := counts[label]; !ok {
			order = append(order, label)
		}
		counts[label]++
	}
	return order, counts
}

func isPure(labels []string) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
