package dataset

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// LoadOptions controls how a delimited file becomes a Dataset.
type LoadOptions struct {
	Target    string
	Delimiter rune
	// Encoding is a WHATWG label such as "windows-1250" or "gbk". Empty means UTF-8.
	Encoding  string
	NaNValues []string
}

// LoadFile reads a delimited text file from path.
func LoadFile(path string, opts LoadOptions) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadCSV(file, opts)
}

// LoadCSV reads a header-first delimited stream. Integer and float columns become numeric
// attributes, everything else categorical. Column order is kept.
func LoadCSV(r io.Reader, opts LoadOptions) (*Dataset, error) {
	reader, err := decode(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}
	nanValues := opts.NaNValues
	if len(nanValues) == 0 {
		nanValues = []string{"", "NA", "NaN", "?"}
	}

	df := dataframe.ReadCSV(reader,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.WithDelimiter(delimiter),
		dataframe.NaNValues(nanValues),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read csv: %w", df.Err)
	}
	if df.Nrow() == 0 {
		return nil, ErrEmpty
	}

	names := df.Names()
	types := df.Types()
	rows := make([]Row, df.Nrow())
	for i := range rows {
		rows[i] = make(Row, len(names))
	}
	for j, name := range names {
		col := df.Col(name)
		switch types[j] {
		case series.Int, series.Float:
			for i, f := range col.Float() {
				rows[i][name] = Number(f)
			}
		default:
			missing := col.IsNaN()
			for i, s := range col.Records() {
				if missing[i] {
					s = ""
				}
				rows[i][name] = Text(s)
			}
		}
	}
	return NewWithColumns(names, rows, opts.Target)
}

func decode(r io.Reader, label string) (io.Reader, error) {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
