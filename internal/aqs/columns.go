// Package aqs loads AQS sample data into observation tables and defines the
// hourly records exported downstream.
package aqs

// Columns of the AQS sample data schema.
const (
	DateLocal         = "date_local"
	TimeLocal         = "time_local"
	DateGMT           = "date_gmt"
	TimeGMT           = "time_gmt"
	SampleMeasurement = "sample_measurement"
	Qualifier         = "qualifier"
	SampleDuration    = "sample_duration"
	Latitude          = "latitude"
	Longitude         = "longitude"
	Method            = "method"
	DateOfLastChange  = "date_of_last_change"
)

// HourlyDuration is the sample_duration value of one-hour samples.
const HourlyDuration = "1 HOUR"
