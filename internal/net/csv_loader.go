package net

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Dataset holds samples and one-hot targets, one sample per row.
type Dataset struct {
	X *mat.Dense
	Y *mat.Dense
}

// NewDataset pairs features with targets. Row counts must match.
func NewDataset(x, y *mat.Dense) (*Dataset, error) {
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return nil, errors.Errorf("dataset: %d samples but %d targets", xr, yr)
	}
	return &Dataset{X: x, Y: y}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	if d == nil || d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// LoadCSV loads data from a CSV file.
// labelCol is the column holding the integer class index in [0, numClasses);
// it is one-hot encoded into Y. All other columns are features.
// hasHeader skips the first line if true.
func LoadCSV(filename string, labelCol, numClasses int, hasHeader bool) (*Dataset, error) {
	if numClasses < 1 {
		return nil, errors.Errorf("numClasses must be positive, got %d", numClasses)
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv")
	}

	startRow := 0
	if hasHeader {
		startRow = 1
	}
	if len(records) <= startRow {
		return nil, errors.New("csv file has no data rows")
	}

	numCols := len(records[startRow])
	if labelCol < 0 || labelCol >= numCols {
		return nil, errors.Errorf("label column %d out of range for %d columns", labelCol, numCols)
	}
	if numCols < 2 {
		return nil, errors.New("csv needs at least one feature column besides the label")
	}

	numSamples := len(records) - startRow
	numFeatures := numCols - 1
	x := mat.NewDense(numSamples, numFeatures, nil)
	y := mat.NewDense(numSamples, numClasses, nil)

	for i := startRow; i < len(records); i++ {
		record := records[i]
		if len(record) != numCols {
			return nil, errors.Errorf("inconsistent number of columns at row %d", i)
		}

		row := x.RawRowView(i - startRow)
		f := 0
		for j, valStr := range record {
			val, err := strconv.ParseFloat(valStr, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse value at row %d, col %d", i, j)
			}
			if j != labelCol {
				row[f] = val
				f++
				continue
			}
			class := int(val)
			if float64(class) != val || class < 0 || class >= numClasses {
				return nil, errors.Errorf("invalid class %q at row %d, want an integer in [0, %d)", valStr, i, numClasses)
			}
			y.Set(i-startRow, class, 1)
		}
	}

	return &Dataset{X: x, Y: y}, nil
}

// Normalize performs min-max normalization on the features, in place.
func (d *Dataset) Normalize() {
	if d.Len() == 0 {
		return
	}
	rows, cols := d.X.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, d.X)
		lo, hi := floats.Min(col), floats.Max(col)
		diff := hi - lo
		for i := 0; i < rows; i++ {
			if diff != 0 {
				d.X.Set(i, j, (col[i]-lo)/diff)
			} else {
				d.X.Set(i, j, 0)
			}
		}
	}
}

// Standardize scales every feature to zero mean and unit variance, in place,
// and returns the per-feature mean and std it used. Constant features become
// zero.
func (d *Dataset) Standardize() (mean, std []float64) {
	if d.Len() == 0 {
		return nil, nil
	}
	rows, cols := d.X.Dims()
	mean = make([]float64, cols)
	std = make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, d.X)
		mean[j], std[j] = stat.MeanStdDev(col, nil)
	}
	d.StandardizeWith(mean, std)
	return mean, std
}

// StandardizeWith applies (x - mean) / std per feature, in place. Features
// with a zero std become zero. Use it to scale held-out data with the
// training set's statistics.
func (d *Dataset) StandardizeWith(mean, std []float64) {
	if d.Len() == 0 {
		return
	}
	rows, cols := d.X.Dims()
	if len(mean) != cols || len(std) != cols {
		panic(mat.ErrShape)
	}
	for i := 0; i < rows; i++ {
		row := d.X.RawRowView(i)
		for j, v := range row {
			if std[j] > 0 {
				row[j] = (v - mean[j]) / std[j]
			} else {
				row[j] = 0
			}
		}
	}
}

// Split splits the dataset into two based on the given ratio (0.0 to 1.0).
// Returns two new Datasets (train, test) sharing storage with d.
func (d *Dataset) Split(ratio float64) (*Dataset, *Dataset) {
	if ratio <= 0 {
		return &Dataset{}, d
	}
	if ratio >= 1 {
		return d, &Dataset{}
	}

	n := d.Len()
	splitIdx := int(float64(n) * ratio)
	switch splitIdx {
	case 0:
		return &Dataset{}, d
	case n:
		return d, &Dataset{}
	}
	_, xc := d.X.Dims()
	_, yc := d.Y.Dims()

	train := &Dataset{
		X: d.X.Slice(0, splitIdx, 0, xc).(*mat.Dense),
		Y: d.Y.Slice(0, splitIdx, 0, yc).(*mat.Dense),
	}
	test := &Dataset{
		X: d.X.Slice(splitIdx, n, 0, xc).(*mat.Dense),
		Y: d.Y.Slice(splitIdx, n, 0, yc).(*mat.Dense),
	}
	return train, test
}

// Batch copies the rows at indices into a new mini-batch.
func (d *Dataset) Batch(indices []int) (x, y *mat.Dense) {
	_, xc := d.X.Dims()
	_, yc := d.Y.Dims()
	x = mat.NewDense(len(indices), xc, nil)
	y = mat.NewDense(len(indices), yc, nil)
	for i, idx := range indices {
		x.SetRow(i, d.X.RawRowView(idx))
		y.SetRow(i, d.Y.RawRowView(idx))
	}
	return x, y
}
