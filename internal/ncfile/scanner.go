package ncfile

import (
	"fmt"
	"math"
	"slices"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/rtm0/aqs/internal/aqs"
)

// Scanner retrieves hourly records from a file written by Write, a batch of
// hours at a time.
type Scanner struct {
	nc    api.Group
	ts    []int64
	la    []float64
	lo    []float64
	names []string
	vars  []api.VarGetter
	batch int
	pos   int
	recs  []aqs.Record
	err   error
}

// NewScanner creates a new scanner returning up to batch hours per Scan.
// Every float variable along time other than the coordinates is read as a
// measurement; measurements are ordered by name.
func NewScanner(filePath string, batch int) (*Scanner, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	if batch < 1 {
		batch = 1
	}
	s := &Scanner{nc: nc, batch: batch}

	hours, err := values[int32](nc, timeVar)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.ts = make([]int64, len(hours))
	for i, h := range hours {
		s.ts[i] = (int64(h)*3600 + unixSecs1900) * 1000
	}

	// Coordinates are optional.
	s.la, _ = values[float64](nc, aqs.Latitude)
	s.lo, _ = values[float64](nc, aqs.Longitude)

	for _, name := range nc.ListVariables() {
		if name == timeVar || name == aqs.Latitude || name == aqs.Longitude {
			continue
		}
		s.names = append(s.names, name)
	}
	slices.Sort(s.names)
	s.vars = make([]api.VarGetter, len(s.names))
	for i, name := range s.names {
		s.vars[i], err = nc.GetVarGetter(name)
		if err != nil {
			nc.Close()
			return nil, err
		}
	}
	return s, nil
}

func values[T int32 | float64](nc api.Group, name string) ([]T, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	vals, ok := v.([]T)
	if !ok {
		return nil, fmt.Errorf("variable %q holds %T, want %T", name, v, vals)
	}
	return vals, nil
}

// Close closes the scanner.
func (s *Scanner) Close() {
	s.nc.Close()
}

// Measurements returns the measurement names, in the order of Record.Values.
func (s *Scanner) Measurements() []string {
	return s.names
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (s *Scanner) Summary() []any {
	return []any{
		"dims", []string{"ts"},
		"metrics", s.names,
		"coordinates", s.la != nil && s.lo != nil,
		"tsCnt", len(s.ts),
		"totalRecCnt", s.TotalRecCount(),
	}
}

// TotalRecCount returns the total number of records within the dataset.
func (s *Scanner) TotalRecCount() int {
	return len(s.ts)
}

// Scan reads the records of the next batch of hours.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.pos >= len(s.ts) {
		return false
	}
	begin := s.pos
	limit := min(begin+s.batch, len(s.ts))

	cols := make([][]float64, len(s.vars))
	for i, vg := range s.vars {
		v, err := vg.GetSlice(int64(begin), int64(limit))
		if err != nil {
			s.err = err
			return false
		}
		col, ok := v.([]float64)
		if !ok {
			s.err = fmt.Errorf("variable %q holds %T, want []float64", s.names[i], v)
			return false
		}
		cols[i] = col
	}

	s.recs = make([]aqs.Record, limit-begin)
	for k := range s.recs {
		r := &s.recs[k]
		r.Timestamp = s.ts[begin+k]
		r.Latitude, r.Longitude = math.NaN(), math.NaN()
		if s.la != nil && s.lo != nil {
			r.Latitude = s.la[begin+k]
			r.Longitude = s.lo[begin+k]
		}
		r.Values = make([]float64, len(cols))
		for i, col := range cols {
			r.Values[i] = col[k]
		}
	}
	s.pos = limit
	return true
}

// Err returns the first error met by Scan.
func (s *Scanner) Err() error {
	return s.err
}

// Records returns the records that have been read by the last Scan() operation.
// The function transfers ownership of records to the caller and the subsequent
// calls to this function without prior invocation of Scan() will return nil.
func (s *Scanner) Records() []aqs.Record {
	recs := s.recs
	s.recs = nil
	return recs
}
