package reshape

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/rtm0/aqs/internal/aqs"
)

var timestampLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp combines a calendar date and a time of day. The result is
// a wall-clock time carried in UTC.
func parseTimestamp(date, clock string) (time.Time, error) {
	s := strings.TrimSpace(strings.TrimSpace(date) + " " + strings.TrimSpace(clock))
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrParse)
}

// column returns the named column of df or ErrMissingColumn.
func column(df dataframe.DataFrame, name string) (series.Series, error) {
	if !slices.Contains(df.Names(), name) {
		return series.Series{}, fmt.Errorf("%q: %w", name, ErrMissingColumn)
	}
	return df.Col(name), nil
}

// localTimestamps builds the row timestamps of df from date_local and
// time_local.
func localTimestamps(df dataframe.DataFrame) ([]time.Time, error) {
	dates, err := column(df, aqs.DateLocal)
	if err != nil {
		return nil, err
	}
	clocks, err := column(df, aqs.TimeLocal)
	if err != nil {
		return nil, err
	}
	index := make([]time.Time, dates.Len())
	for i := range index {
		d, c := dates.Elem(i), clocks.Elem(i)
		if d.IsNA() || c.IsNA() {
			return nil, fmt.Errorf("row %d: missing date or time: %w", i, ErrParse)
		}
		ts, err := parseTimestamp(d.String(), c.String())
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		index[i] = ts
	}
	return index, nil
}
