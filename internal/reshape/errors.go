package reshape

import "errors"

var (
	// ErrMissingColumn is returned when a referenced column does not exist.
	ErrMissingColumn = errors.New("missing column")
	// ErrParse is returned for date_local/time_local values that are not a
	// calendar date and a time of day.
	ErrParse = errors.New("cannot parse timestamp")
	// ErrInvalidArgument is returned for unusable arguments, such as an empty
	// list of tables to join.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateColumn is returned when two columns would share a name.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrDuplicateIndex is returned when a timestamp occurs more than once
	// where a unique index is required.
	ErrDuplicateIndex = errors.New("duplicate timestamp")
	// ErrUnsortedIndex is returned when a strictly increasing index is
	// required.
	ErrUnsortedIndex = errors.New("timestamps are not increasing")
)
