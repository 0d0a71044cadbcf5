package reshape

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/go-gota/gota/series"

	"github.com/rtm0/aqs/internal/aqs"
)

const hour = time.Hour

func isCoordinate(name string) bool {
	return name == aqs.Latitude || name == aqs.Longitude
}

// dedupe resolves rows sharing a timestamp according to policy. Kept rows
// stay in input order.
func dedupe(t *Table, policy Duplicates) (*Table, error) {
	if policy == DuplicatesKeep {
		return t, nil
	}
	n := t.Nrow()
	keep := make([]bool, n)
	seen := make(map[int64]bool, n)
	switch policy {
	case DuplicatesFirst:
		for i := 0; i < n; i++ {
			k := t.Index[i].UnixNano()
			keep[i] = !seen[k]
			seen[k] = true
		}
	case DuplicatesLast:
		for i := n - 1; i >= 0; i-- {
			k := t.Index[i].UnixNano()
			keep[i] = !seen[k]
			seen[k] = true
		}
	default:
		return nil, fmt.Errorf("duplicates policy %d: %w", policy, ErrInvalidArgument)
	}
	rows := make([]int, 0, len(seen))
	for i, ok := range keep {
		if ok {
			rows = append(rows, i)
		}
	}
	return t.take(rows), nil
}

// asFreq reindexes t to a regular axis from its first to its last
// timestamp. Every slot takes the row of the latest timestamp at or before
// it; rows already on the axis are kept as they are.
func asFreq(t *Table, step time.Duration) (*Table, error) {
	n := t.Nrow()
	if n == 0 {
		return t, nil
	}
	for i := 1; i < n; i++ {
		switch t.Index[i].Compare(t.Index[i-1]) {
		case 0:
			return nil, fmt.Errorf("%s: %w", t.Index[i].Format(IndexLayout), ErrDuplicateIndex)
		case -1:
			return nil, fmt.Errorf("%s follows %s: %w", t.Index[i].Format(IndexLayout), t.Index[i-1].Format(IndexLayout), ErrUnsortedIndex)
		}
	}

	first, last := t.Index[0], t.Index[n-1]
	var (
		index []time.Time
		rows  []int
	)
	j := 0
	for ts := first; !ts.After(last); ts = ts.Add(step) {
		for j+1 < n && !t.Index[j+1].After(ts) {
			j++
		}
		index = append(index, ts)
		rows = append(rows, j)
	}
	out := t.take(rows)
	out.Index = index
	return out, nil
}

type rowKey struct {
	ts int64
	// n is the occurrence of ts within its table.
	n int
}

// outerJoin aligns tables on their index. The result holds the sorted
// union of all timestamps; the k-th row at a timestamp in one table lines
// up with the k-th row at that timestamp in the others. Cells of tables
// lacking a row are missing. Coordinate columns found in several tables
// are merged, keeping the first non-missing value.
func outerJoin(tables []*Table) (*Table, error) {
	positions := make([]map[rowKey]int, len(tables))
	times := make(map[rowKey]time.Time)
	for i, t := range tables {
		positions[i] = make(map[rowKey]int, t.Nrow())
		occurrences := make(map[int64]int, t.Nrow())
		for row, ts := range t.Index {
			k := rowKey{ts: ts.UnixNano(), n: occurrences[ts.UnixNano()]}
			occurrences[k.ts]++
			positions[i][k] = row
			times[k] = ts
		}
	}
	keys := make([]rowKey, 0, len(times))
	for k := range times {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b rowKey) int {
		if a.ts != b.ts {
			if a.ts < b.ts {
				return -1
			}
			return 1
		}
		return a.n - b.n
	})
	index := make([]time.Time, len(keys))
	for i, k := range keys {
		index[i] = times[k]
	}

	var cols []series.Series
	owners := make(map[string]int)
	sources := make(map[string]int)
	for i, t := range tables {
		rows := make([]int, len(keys))
		for r, k := range keys {
			row, ok := positions[i][k]
			if !ok {
				row = -1
			}
			rows[r] = row
		}
		for _, c := range t.columns {
			s := takeSeries(c, rows)
			j, dup := owners[c.Name]
			switch {
			case dup && isCoordinate(c.Name):
				cols[j] = coalesce(cols[j], s)
			case dup:
				return nil, fmt.Errorf("%q is in tables %d and %d: %w", c.Name, sources[c.Name], i, ErrDuplicateColumn)
			default:
				owners[c.Name] = len(cols)
				sources[c.Name] = i
				cols = append(cols, s)
			}
		}
	}
	return &Table{Index: index, columns: cols}, nil
}

// coalesce fills the missing cells of a with the cells of b.
func coalesce(a, b series.Series) series.Series {
	vals := make([]any, a.Len())
	for i := range vals {
		if e := a.Elem(i); !e.IsNA() {
			vals[i] = e.Val()
		} else if e := b.Elem(i); !e.IsNA() {
			vals[i] = e.Val()
		}
	}
	return series.New(vals, a.Type(), a.Name)
}

type aggregate struct {
	col series.Series
	typ series.Type
	fn  func(s series.Series, rows []int) any
}

func aggMean(s series.Series, rows []int) any {
	var (
		sum float64
		n   int
	)
	for _, r := range rows {
		e := s.Elem(r)
		if e.IsNA() {
			continue
		}
		v := e.Float()
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return nil
	}
	return sum / float64(n)
}

func aggFirst(s series.Series, rows []int) any {
	for _, r := range rows {
		if e := s.Elem(r); !e.IsNA() {
			return e.Val()
		}
	}
	return nil
}

// resampleHourly groups the rows of t into hour buckets spanning its first
// to its last timestamp. The result has the coordinate columns present in
// t, the measurement columns averaged and their qualifier columns reduced
// to the first non-missing value. Other columns are dropped.
func resampleHourly(t *Table, measurements []string) (*Table, error) {
	var aggs []aggregate
	add := func(name string, fn func(series.Series, []int) any, float bool) error {
		c, err := t.Col(name)
		if err != nil {
			return err
		}
		typ := c.Type()
		if float {
			typ = series.Float
		}
		aggs = append(aggs, aggregate{col: c, typ: typ, fn: fn})
		return nil
	}

	for _, name := range []string{aqs.Latitude, aqs.Longitude} {
		if t.Has(name) {
			if err := add(name, aggFirst, false); err != nil {
				return nil, err
			}
		}
	}
	seen := make(map[string]bool, len(measurements))
	for _, m := range measurements {
		if seen[m] {
			return nil, fmt.Errorf("measurement %q listed twice: %w", m, ErrInvalidArgument)
		}
		seen[m] = true
		if isCoordinate(m) {
			return nil, fmt.Errorf("%q is a coordinate, not a measurement: %w", m, ErrInvalidArgument)
		}
		if err := add(m, aggMean, true); err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
	}
	for _, m := range measurements {
		if err := add(QualifierName(m), aggFirst, false); err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
	}

	var buckets [][]int
	var index []time.Time
	if t.Nrow() > 0 {
		start := t.Index[0].Truncate(hour)
		end := t.Index[t.Nrow()-1].Truncate(hour)
		n := int(end.Sub(start)/hour) + 1
		buckets = make([][]int, n)
		index = make([]time.Time, n)
		for i := range index {
			index[i] = start.Add(time.Duration(i) * hour)
		}
		for row, ts := range t.Index {
			b := int(ts.Truncate(hour).Sub(start) / hour)
			buckets[b] = append(buckets[b], row)
		}
	}

	cols := make([]series.Series, len(aggs))
	for i, a := range aggs {
		vals := make([]any, len(buckets))
		for b, rows := range buckets {
			vals[b] = a.fn(a.col, rows)
		}
		cols[i] = series.New(vals, a.typ, a.col.Name)
	}
	return &Table{Index: index, columns: cols}, nil
}
