package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ErrRowRejected wraps the reason a rule dropped a row.
var ErrRowRejected = errors.New("row rejected")

// CleaningRule inspects one row. A non-nil error rejects the row, a non-nil Row replaces it.
type CleaningRule interface {
	Apply(Row) (Row, error)
	Name() string
}

// resetter is implemented by rules that keep state across the rows of one Clean call.
type resetter interface {
	Reset()
}

// Issue records why a row was rejected. Row is the index in the input dataset.
type Issue struct {
	Rule    string `json:"rule"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// CleaningStats counts the outcome of one Clean call. Issues is keyed by rule name.
type CleaningStats struct {
	TotalProcessed int            `json:"total_processed"`
	Passed         int            `json:"passed"`
	Rejected       int            `json:"rejected"`
	Corrected      int            `json:"corrected"`
	Issues         map[string]int `json:"issues"`
}

// Cleaner runs its rules over every row in order. A row stops at its first rejection.
type Cleaner struct {
	rules []CleaningRule
}

// NewCleaner returns a cleaner that drops rows without a target value and exact duplicates.
func NewCleaner(target string) *Cleaner {
	c := &Cleaner{}
	c.AddRule(MissingTargetRule{Target: target})
	c.AddRule(NewDuplicateRule())
	return c
}

// AddRule appends rule after the existing ones.
func (c *Cleaner) AddRule(rule CleaningRule) {
	c.rules = append(c.rules, rule)
}

// Rules lists the rule names in execution order.
func (c *Cleaner) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name()
	}
	return names
}

// Clean returns a new dataset over the surviving rows with recomputed metadata.
// Attributes excluded in d stay excluded.
func (c *Cleaner) Clean(d *Dataset) (*Dataset, []Issue, CleaningStats, error) {
	stats := CleaningStats{Issues: make(map[string]int)}
	if d == nil || len(d.Rows) == 0 {
		return nil, nil, stats, ErrEmpty
	}
	for _, r := range c.rules {
		if rs, ok := r.(resetter); ok {
			rs.Reset()
		}
	}

	var issues []Issue
	kept := make([]Row, 0, len(d.Rows))
	for i, row := range d.Rows {
		stats.TotalProcessed++
		current := row
		corrected := false
		var rejected *Issue
		for _, r := range c.rules {
			out, err := r.Apply(current)
			if err != nil {
				rejected = &Issue{Rule: r.Name(), Row: i, Message: err.Error()}
				break
			}
			if out != nil {
				current = out
				corrected = true
			}
		}
		if rejected != nil {
			stats.Rejected++
			stats.Issues[rejected.Rule]++
			issues = append(issues, *rejected)
			continue
		}
		if corrected {
			stats.Corrected++
		}
		stats.Passed++
		kept = append(kept, current)
	}
	if len(kept) == 0 {
		return nil, issues, stats, fmt.Errorf("every row was rejected: %w", ErrEmpty)
	}
	cleaned, err := d.rebuild(kept)
	if err != nil {
		return nil, issues, stats, err
	}
	return cleaned, issues, stats, nil
}

// rebuild recomputes metadata over rows and carries over the UseForModel flags of d.
func (d *Dataset) rebuild(rows []Row) (*Dataset, error) {
	columns := make([]string, len(d.Attributes))
	use := make(map[string]bool, len(d.Attributes))
	for i, a := range d.Attributes {
		columns[i] = a.Name
		use[a.Name] = a.UseForModel
	}
	out, err := NewWithColumns(columns, rows, d.Target)
	if err != nil {
		return nil, err
	}
	for i := range out.Attributes {
		out.Attributes[i].UseForModel = use[out.Attributes[i].Name]
	}
	return out, nil
}

// MissingTargetRule rejects rows whose target value is absent or empty.
type MissingTargetRule struct {
	Target string
}

func (r MissingTargetRule) Name() string {
	return "missing_target"
}

func (r MissingTargetRule) Apply(row Row) (Row, error) {
	if v, ok := row[r.Target]; !ok || v.IsMissing() {
		return nil, fmt.Errorf("%w: no value for target %q", ErrRowRejected, r.Target)
	}
	return nil, nil
}

// DuplicateRule rejects rows identical to one seen earlier in the same Clean call.
type DuplicateRule struct {
	seen map[string]struct{}
}

// NewDuplicateRule returns a rule with an empty seen set.
func NewDuplicateRule() *DuplicateRule {
	return &DuplicateRule{seen: make(map[string]struct{})}
}

func (r *DuplicateRule) Name() string {
	return "duplicate"
}

func (r *DuplicateRule) Reset() {
	r.seen = make(map[string]struct{})
}

func (r *DuplicateRule) Apply(row Row) (Row, error) {
	key := rowKey(row)
	if _, dup := r.seen[key]; dup {
		return nil, fmt.Errorf("%w: duplicate row", ErrRowRejected)
	}
	r.seen[key] = struct{}{}
	return nil, nil
}

func rowKey(row Row) string {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		v := row[name]
		fmt.Fprintf(&b, "%s=%d:%s\x00", name, v.Kind, v.String())
	}
	return b.String()
}

// RangeRule rejects rows whose numeric attribute lies outside [Min, Max].
// Missing values pass.
type RangeRule struct {
	Attribute string
	Min, Max  float64
}

func (r RangeRule) Name() string {
	return "range_" + r.Attribute
}

func (r RangeRule) Apply(row Row) (Row, error) {
	v, ok := row[r.Attribute]
	if !ok || v.IsMissing() {
		return nil, nil
	}
	f := v.Float()
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: %q", ErrNonNumericAttribute, r.Attribute)
	}
	if f < r.Min || f > r.Max {
		return nil, fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrRowRejected, r.Attribute, f, r.Min, r.Max)
	}
	return nil, nil
}

// FillMissing replaces missing model attributes with the column median (numeric) or
// the most frequent value (categorical). It returns a new dataset and the number of
// cells filled. The target column is never filled.
func (d *Dataset) FillMissing() (*Dataset, int, error) {
	if len(d.Rows) == 0 {
		return nil, 0, ErrEmpty
	}
	fill := make(map[string]Value)
	for _, a := range d.ModelAttributes() {
		switch a.Kind {
		case Numeric:
			values := make([]float64, 0, len(d.Rows))
			for _, row := range d.Rows {
				if v, ok := row[a.Name]; ok && !v.IsMissing() {
					values = append(values, v.Num)
				}
			}
			if len(values) == 0 {
				continue
			}
			fill[a.Name] = Number(median(values))
		default:
			if len(a.Top) > 0 {
				fill[a.Name] = Text(a.Top[0])
			}
		}
	}

	filled := 0
	rows := make([]Row, len(d.Rows))
	for i, row := range d.Rows {
		var copied Row
		for name, value := range fill {
			if v, ok := row[name]; ok && !v.IsMissing() {
				continue
			}
			if copied == nil {
				copied = make(Row, len(row)+1)
				for k, v := range row {
					copied[k] = v
				}
			}
			copied[name] = value
			filled++
		}
		if copied != nil {
			rows[i] = copied
		} else {
			rows[i] = row
		}
	}
	out, err := d.rebuild(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, filled, nil
}

// median sorts values in place and returns the middle value, or the mean of the two
// middle values for an even count.
func median(values []float64) float64 {
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return stat.Mean(values[mid-1:mid+1], nil)
}
