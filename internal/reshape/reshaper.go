// Package reshape turns AQS observation tables into hourly, time-indexed
// tables ready for modeling.
package reshape

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/rtm0/aqs/internal/aqs"
)

// QualifierName returns the name of the qualifier column paired with a
// measurement column.
func QualifierName(measurement string) string {
	return measurement + " - qualifier"
}

// rawTimeColumns are dropped once the index has been built.
var rawTimeColumns = []string{aqs.DateGMT, aqs.TimeGMT, aqs.DateLocal, aqs.TimeLocal, aqs.DateOfLastChange}

// Reshaper reshapes observation tables. It holds no state besides its logger
// and is safe for concurrent use.
type Reshaper struct {
	logger *slog.Logger
}

// New creates a reshaper logging diagnostics to logger. A nil logger
// discards them.
func New(logger *slog.Logger) *Reshaper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reshaper{logger: logger}
}

// ProjectUnique keeps the columns of obs holding at least two distinct
// values, indexes the rows by their local timestamp and renames
// sample_measurement to measurement.
func (r *Reshaper) ProjectUnique(obs dataframe.DataFrame, measurement string, opts ProjectOptions) (*Table, error) {
	if obs.Err != nil {
		return nil, fmt.Errorf("observation table: %w", obs.Err)
	}
	index, err := localTimestamps(obs)
	if err != nil {
		return nil, err
	}

	var (
		cols    []series.Series
		removed []string
	)
	for _, name := range obs.Names() {
		s := obs.Col(name)
		if distinct(s) < 2 {
			removed = append(removed, name)
			continue
		}
		if slices.Contains(rawTimeColumns, name) {
			continue
		}
		cols = append(cols, s)
	}
	t, err := NewTable(index, cols...)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		r.logger.Info("projected observation table", "measurement", measurement, "kept", t.Names(), "removed", removed)
	}

	t, err = t.Rename(measurement, aqs.SampleMeasurement)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", measurement, err)
	}
	return t, nil
}

// distinct counts the distinct non-missing values of s. Floats are
// compared by value since their string form is rounded.
func distinct(s series.Series) int {
	seen := make(map[any]struct{})
	for i := 0; i < s.Len(); i++ {
		e := s.Elem(i)
		if e.IsNA() {
			continue
		}
		var key any = e.String()
		if s.Type() == series.Float {
			key = math.Float64bits(e.Float())
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

// processColumns are selected by Process, in output order.
var processColumns = []string{aqs.SampleMeasurement, aqs.Latitude, aqs.Longitude, aqs.SampleDuration, aqs.Qualifier}

// Process reduces the observations of one parameter to its hourly readings:
// a measurement column named measurement and a qualifier column named
// QualifierName(measurement), plus coordinates unless opts.DropLatLon.
//
// When no hourly rows remain the returned table has no rows and no columns.
func (r *Reshaper) Process(obs dataframe.DataFrame, measurement string, opts ProcessOptions) (*Table, error) {
	if obs.Err != nil {
		return nil, fmt.Errorf("observation table: %w", obs.Err)
	}
	if opts.SelectMethod {
		var err error
		obs, err = r.selectFirstMethod(obs, measurement)
		if err != nil {
			return nil, err
		}
	}

	index, err := localTimestamps(obs)
	if err != nil {
		return nil, err
	}
	cols := make([]series.Series, len(processColumns))
	for i, name := range processColumns {
		if cols[i], err = column(obs, name); err != nil {
			return nil, fmt.Errorf("process %s: %w", measurement, err)
		}
	}
	t, err := NewTable(index, cols...)
	if err != nil {
		return nil, err
	}
	if t, err = t.Rename(measurement, aqs.SampleMeasurement); err != nil {
		return nil, err
	}
	qualifier := QualifierName(measurement)
	if t, err = t.Rename(qualifier, aqs.Qualifier); err != nil {
		return nil, err
	}

	t, err = hourlyOnly(t)
	if err != nil {
		return nil, err
	}
	if t.Nrow() == 0 {
		r.logger.Warn("no hourly data", "measurement", measurement)
		return t.Drop(aqs.Latitude, aqs.Longitude, measurement, qualifier)
	}

	t, err = dedupe(t, opts.Duplicates)
	if err != nil {
		return nil, err
	}
	if opts.ChangeFreq {
		r.logger.Debug("changing frequency to hourly", "measurement", measurement,
			"rows", t.Nrow(), "first", t.Index[0], "last", t.Index[t.Nrow()-1])
		if t, err = asFreq(t, hour); err != nil {
			return nil, fmt.Errorf("process %s: %w", measurement, err)
		}
	}
	if opts.DropLatLon {
		if t, err = t.Drop(aqs.Latitude, aqs.Longitude); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// selectFirstMethod keeps the rows collected by the first non-missing
// method in input order.
func (r *Reshaper) selectFirstMethod(obs dataframe.DataFrame, measurement string) (dataframe.DataFrame, error) {
	methods, err := column(obs, aqs.Method)
	if err != nil {
		return obs, fmt.Errorf("process %s: %w", measurement, err)
	}
	for i := 0; i < methods.Len(); i++ {
		e := methods.Elem(i)
		if e.IsNA() {
			continue
		}
		method := e.String()
		selected := obs.Filter(dataframe.F{
			Colname:    aqs.Method,
			Comparator: series.Eq,
			Comparando: method,
		})
		if selected.Err != nil {
			return obs, fmt.Errorf("process %s: select method %q: %w", measurement, method, selected.Err)
		}
		r.logger.Debug("selected collection method", "measurement", measurement, "method", method,
			"rows", selected.Nrow(), "discarded", obs.Nrow()-selected.Nrow())
		return selected, nil
	}
	return obs, nil
}

// hourlyOnly keeps the rows whose sample_duration is one hour and drops
// the duration column.
func hourlyOnly(t *Table) (*Table, error) {
	durations, err := t.Col(aqs.SampleDuration)
	if err != nil {
		return nil, err
	}
	var rows []int
	for i := 0; i < durations.Len(); i++ {
		e := durations.Elem(i)
		if !e.IsNA() && e.String() == aqs.HourlyDuration {
			rows = append(rows, i)
		}
	}
	return t.take(rows).Drop(aqs.SampleDuration)
}

// Join aligns the given tables on their timestamps and aggregates them into
// hourly buckets. Every name in measurements must have a measurement column
// and a qualifier column in exactly one of the tables. Measurements are
// averaged per hour, qualifiers and coordinates take the first non-missing
// value of the hour.
func (r *Reshaper) Join(tables []*Table, measurements []string) (*Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("join needs at least one table: %w", ErrInvalidArgument)
	}
	for i, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("table %d is nil: %w", i, ErrInvalidArgument)
		}
	}
	joined, err := outerJoin(tables)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("joined tables", "tables", len(tables), "rows", joined.Nrow(), "columns", joined.Names())
	return resampleHourly(joined, measurements)
}
