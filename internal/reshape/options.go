package reshape

import "fmt"

// Duplicates selects how Process resolves rows sharing a timestamp.
type Duplicates int

const (
	// DuplicatesKeep leaves duplicate timestamps in place.
	DuplicatesKeep Duplicates = iota
	// DuplicatesFirst keeps the first row of every timestamp.
	DuplicatesFirst
	// DuplicatesLast keeps the last row of every timestamp.
	DuplicatesLast
)

// ParseDuplicates parses "none", "first" or "last".
func ParseDuplicates(s string) (Duplicates, error) {
	switch s {
	case "none", "":
		return DuplicatesKeep, nil
	case "first":
		return DuplicatesFirst, nil
	case "last":
		return DuplicatesLast, nil
	default:
		return DuplicatesKeep, fmt.Errorf("unknown duplicates policy %q (allowed: none, first, last): %w", s, ErrInvalidArgument)
	}
}

func (d Duplicates) String() string {
	switch d {
	case DuplicatesFirst:
		return "first"
	case DuplicatesLast:
		return "last"
	default:
		return "none"
	}
}

// ProcessOptions controls Process.
type ProcessOptions struct {
	// SelectMethod keeps only the rows collected by the first method seen
	// in the input.
	SelectMethod bool
	// ChangeFreq reindexes the result to a strict hourly axis, each missing
	// hour taking the values of the last known row.
	ChangeFreq bool
	// DropLatLon removes the latitude and longitude columns.
	DropLatLon bool
	// Duplicates resolves rows sharing a timestamp.
	Duplicates Duplicates
}

// DefaultProcessOptions returns the options used when nothing else is asked
// for: coordinates are dropped, everything else is off.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{DropLatLon: true}
}

// ProjectOptions controls ProjectUnique.
type ProjectOptions struct {
	// Verbose logs the kept and removed columns.
	Verbose bool
}
