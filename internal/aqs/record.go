package aqs

// Record is a collection of hourly readings taken at a monitoring site.
type Record struct {
	// Dimensions
	Timestamp int64   // unix milliseconds
	Latitude  float64 // NaN when unknown
	Longitude float64 // NaN when unknown

	// Metrics, in the order of the measurement names they were read with.
	// Missing readings are NaN.
	Values []float64
}
