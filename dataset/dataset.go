package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// DefaultTopK bounds the categorical values used for one-hot expansion.
const DefaultTopK = 5

var (
	ErrEmpty               = errors.New("dataset is empty")
	ErrTargetNotFound      = errors.New("target column not found in attribute metadata")
	ErrUnknownAttribute    = errors.New("unknown attribute")
	ErrMissingAttribute    = errors.New("missing attribute value")
	ErrNonNumericAttribute = errors.New("attribute value is not numeric")
)

// AttributeMeta describes one column. It is computed once when the Dataset is built.
type AttributeMeta struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	UseForModel bool     `json:"use_for_model"`
	Values      []string `json:"values,omitempty"`
	Top         []string `json:"top,omitempty"`
}

// Clone returns a copy that shares no slices with a.
func (a AttributeMeta) Clone() AttributeMeta {
	a.Values = append([]string(nil), a.Values...)
	a.Top = append([]string(nil), a.Top...)
	return a
}

// Dataset is an ordered set of rows with column metadata and a target column.
type Dataset struct {
	Rows       []Row
	Attributes []AttributeMeta
	Target     string
}

// New builds a Dataset, ordering columns by name.
func New(rows []Row, target string) (*Dataset, error) {
	seen := make(map[string]struct{})
	columns := make([]string, 0)
	for _, row := range rows {
		for name := range row {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				columns = append(columns, name)
			}
		}
	}
	sort.Strings(columns)
	return NewWithColumns(columns, rows, target)
}

// NewWithColumns builds a Dataset whose attribute metadata follows the given column order.
func NewWithColumns(columns []string, rows []Row, target string) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	attributes := make([]AttributeMeta, 0, len(columns))
	for _, name := range columns {
		attributes = append(attributes, describe(name, rows))
	}
	ds := &Dataset{Rows: rows, Attributes: attributes, Target: target}
	if _, ok := ds.TargetMeta(); !ok {
		return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, target)
	}
	return ds, nil
}

func describe(name string, rows []Row) AttributeMeta {
	meta := AttributeMeta{Name: name, Kind: Numeric, UseForModel: true}
	present := 0
	for _, row := range rows {
		v, ok := row[name]
		if !ok || v.IsMissing() {
			continue
		}
		present++
		if v.Kind != Numeric {
			meta.Kind = Categorical
		}
	}
	if present == 0 {
		meta.Kind = Categorical
	}
	if meta.Kind == Numeric {
		return meta
	}

	counts := make(map[string]int)
	for _, row := range rows {
		v, ok := row[name]
		if !ok || v.IsMissing() {
			continue
		}
		s := v.String()
		if _, seen := counts[s]; !seen {
			meta.Values = append(meta.Values, s)
		}
		counts[s]++
	}
	meta.Top = topValues(meta.Values, counts, DefaultTopK)
	return meta
}

func topValues(values []string, counts map[string]int, k int) []string {
	ranked := append([]string(nil), values...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] > counts[ranked[j]]
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Attribute returns the metadata of the named column.
func (d *Dataset) Attribute(name string) (AttributeMeta, bool) {
	for _, a := range d.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeMeta{}, false
}

// TargetMeta returns the metadata of the target column.
func (d *Dataset) TargetMeta() (AttributeMeta, bool) {
	return d.Attribute(d.Target)
}

// Classes lists the distinct target values in first-appearance order.
func (d *Dataset) Classes() []string {
	meta, ok := d.TargetMeta()
	if !ok {
		return nil
	}
	return append([]string(nil), meta.Values...)
}

// Label returns the target value of row as text.
func (d *Dataset) Label(row Row) string {
	return row[d.Target].String()
}

// ModelAttributes lists the attributes a model may learn from, target excluded.
func (d *Dataset) ModelAttributes() []AttributeMeta {
	attrs := make([]AttributeMeta, 0, len(d.Attributes))
	for _, a := range d.Attributes {
		if a.UseForModel && a.Name != d.Target {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// Exclude marks the named attributes as not usable by models.
func (d *Dataset) Exclude(names ...string) error {
	for _, name := range names {
		found := false
		for i := range d.Attributes {
			if d.Attributes[i].Name == name {
				d.Attributes[i].UseForModel = false
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
		}
	}
	return nil
}

// WithRows returns a dataset over rows that keeps d's metadata.
func (d *Dataset) WithRows(rows []Row) *Dataset {
	return &Dataset{Rows: rows, Attributes: cloneAttributes(d.Attributes), Target: d.Target}
}

// WithAttributes restricts the metadata to names, in that order, plus the target column.
func (d *Dataset) WithAttributes(names []string) (*Dataset, error) {
	attrs := make([]AttributeMeta, 0, len(names)+1)
	for _, name := range names {
		if name == d.Target {
			continue
		}
		a, ok := d.Attribute(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
		}
		attrs = append(attrs, a.Clone())
	}
	target, ok := d.TargetMeta()
	if !ok {
		return nil, ErrTargetNotFound
	}
	attrs = append(attrs, target.Clone())
	return &Dataset{Rows: d.Rows, Attributes: attrs, Target: d.Target}, nil
}

// Split shuffles the rows with seed and cuts off floor(n*testFraction) of them as the
// test set. Both parts keep the metadata computed for the whole dataset.
func (d *Dataset) Split(testFraction float64, seed int64) (train, test *Dataset, err error) {
	if testFraction < 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in [0,1), got %v", testFraction)
	}
	if len(d.Rows) == 0 {
		return nil, nil, ErrEmpty
	}
	rnd := rand.New(rand.NewSource(seed))
	order := rnd.Perm(len(d.Rows))
	testSize := int(float64(len(d.Rows)) * testFraction)

	testRows := make([]Row, 0, testSize)
	trainRows := make([]Row, 0, len(d.Rows)-testSize)
	for i, idx := range order {
		if i < testSize {
			testRows = append(testRows, d.Rows[idx])
		} else {
			trainRows = append(trainRows, d.Rows[idx])
		}
	}
	if len(trainRows) == 0 {
		return nil, nil, fmt.Errorf("split leaves no training rows: %w", ErrEmpty)
	}
	return d.WithRows(trainRows), d.WithRows(testRows), nil
}

func cloneAttributes(attrs []AttributeMeta) []AttributeMeta {
	out := make([]AttributeMeta, len(attrs))
	for i, a := range attrs {
		out[i] = a.Clone()
	}
	return out
}
