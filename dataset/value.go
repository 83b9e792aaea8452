// Package dataset holds the in-memory tabular data every learning engine consumes:
// typed row values, per-attribute metadata and a designated target column.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the type tag of an attribute.
type Kind int

const (
	Categorical Kind = iota
	Numeric
)

func (k Kind) String() string {
	switch k {
	case Categorical:
		return "categorical"
	case Numeric:
		return "numeric"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText keeps persisted metadata readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "categorical":
		*k = Categorical
	case "numeric":
		*k = Numeric
	default:
		return fmt.Errorf("unknown attribute kind %q", string(text))
	}
	return nil
}

// Value is a single cell. Numeric cells carry Num, categorical cells carry Text.
// A missing numeric value is NaN, a missing categorical value is the empty string.
type Value struct {
	Kind Kind
	Text string
	Num  float64
}

// Text returns a categorical value.
func Text(s string) Value {
	return Value{Kind: Categorical, Text: s}
}

// Number returns a numeric value.
func Number(f float64) Value {
	return Value{Kind: Numeric, Num: f}
}

// IsMissing reports whether the cell holds no usable value.
func (v Value) IsMissing() bool {
	if v.Kind == Numeric {
		return math.IsNaN(v.Num)
	}
	return v.Text == ""
}

// Float returns the numeric reading of the value, NaN when there is none.
func (v Value) Float() float64 {
	if v.Kind == Numeric {
		return v.Num
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func (v Value) String() string {
	if v.Kind == Numeric {
		if math.IsNaN(v.Num) {
			return ""
		}
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return v.Text
}

// Row maps attribute names to values. Rows are not modified once they belong to a Dataset.
type Row map[string]Value
