package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ReadCSV imports comma-delimited rows of four numeric columns
// x, x_err, y, y_err with no header row. Rows end up sorted ascending
// by x and zero y uncertainties are replaced with a fixed epsilon. Any
// malformed row fails the whole import with ErrInputFormat.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4

	var samples []Sample

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInputFormat, line, err)
		}

		var fields [4]float64

		for i, raw := range record {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: field %q is not numeric", ErrInputFormat, line, raw)
			}

			fields[i] = v
		}

		samples = append(samples, Sample{X: fields[0], XErr: fields[1], Y: fields[2], YErr: fields[3]})
	}

	return New(samples), nil
}

// ReadCSVFile imports a dataset from the named file.
func ReadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}
