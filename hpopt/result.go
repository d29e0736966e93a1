package hpopt

import (
	"encoding/csv"
	"encoding/gob"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Result is the outcome of a search.
type Result struct {
	Space    Space
	Xs       [][]float64 // every evaluated point, in evaluation order
	FuncVals []float64   // the loss of each point in Xs

	X   []float64 // best point
	Fun float64   // best loss; +Inf when nothing was evaluated

	Acq     string
	Seed    int64
	Created time.Time
}

// Evaluation is a single point and its loss.
type Evaluation struct {
	X    []float64
	Loss float64
}

// Sorted returns all evaluations, best first. Ties keep evaluation order.
func (r *Result) Sorted() []Evaluation {
	retVal := make([]Evaluation, len(r.Xs))
	for i := range r.Xs {
		retVal[i] = Evaluation{X: r.Xs[i], Loss: r.FuncVals[i]}
	}
	sort.SliceStable(retVal, func(i, j int) bool { return retVal[i].Loss < retVal[j].Loss })
	return retVal
}

// Save writes the result to filename.
func (r *Result) Save(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	return errors.WithStack(enc.Encode(r))
}

// Dump saves the result in dir (created if needed) as result_YYYYMMDD-HHMMSS.gob and returns the file name.
func (r *Result) Dump(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.WithStack(err)
	}
	filename := filepath.Join(dir, "result_"+time.Now().Format("20060102-150405")+".gob")
	return filename, r.Save(filename)
}

// Load reads a result written by Save or Dump.
func Load(filename string) (*Result, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	r := new(Result)
	dec := gob.NewDecoder(f)
	if err = dec.Decode(r); err != nil {
		return nil, errors.WithStack(err)
	}
	return r, nil
}

// WriteCSV writes the evaluation trace: one row per evaluation with the point, its loss, and the best loss so far.
func (r *Result) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"call"}, r.Space.Names()...)
	header = append(header, "loss", "best")
	if err := cw.Write(header); err != nil {
		return err
	}

	records := make([][]string, 0, len(r.Xs))
	best := math.Inf(1)
	for i, x := range r.Xs {
		best = math.Min(best, r.FuncVals[i])
		record := []string{strconv.Itoa(i + 1)}
		for _, v := range x {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		record = append(record,
			strconv.FormatFloat(r.FuncVals[i], 'g', -1, 64),
			strconv.FormatFloat(best, 'g', -1, 64))
		records = append(records, record)
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// CheckpointSaver returns a callback that saves the result to dir/checkpoint.gob after every evaluation.
func CheckpointSaver(dir string) (Callback, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}
	filename := filepath.Join(dir, "checkpoint.gob")
	return func(res *Result) error {
		return res.Save(filename)
	}, nil
}
