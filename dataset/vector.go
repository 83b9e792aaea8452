package dataset

import "fmt"

// InputVector converts row into a numeric vector following attrs: numeric attributes are
// passed through, categorical ones are one-hot encoded over their Top values.
// A required attribute that is absent or missing is an error, never a default.
func InputVector(row Row, attrs []AttributeMeta) ([]float64, error) {
	vector := make([]float64, 0, len(attrs))
	for _, attr := range attrs {
		v, ok := row[attr.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingAttribute, attr.Name)
		}
		if attr.Kind == Numeric {
			if v.Kind != Numeric {
				return nil, fmt.Errorf("%w: %q=%q", ErrNonNumericAttribute, attr.Name, v.Text)
			}
			if v.IsMissing() {
				return nil, fmt.Errorf("%w: %q", ErrMissingAttribute, attr.Name)
			}
			vector = append(vector, v.Num)
			continue
		}
		vector = append(vector, OneHot(v.String(), attr.Top)...)
	}
	return vector, nil
}

// OneHot returns a vector with 1 at the position of value in values and 0 elsewhere.
func OneHot(value string, values []string) []float64 {
	vector := make([]float64, len(values))
	for i, v := range values {
		if v == value {
			vector[i] = 1
		}
	}
	return vector
}
