// Package ncfile stores hourly joined tables as NetCDF files and reads them
// back one batch of hours at a time.
package ncfile

import (
	"fmt"
	"regexp"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/rtm0/aqs/internal/aqs"
	"github.com/rtm0/aqs/internal/reshape"
)

// TZ=UTC date --date="1900-01-01 00:00:00" +%s
const unixSecs1900 = -2208988800

const (
	timeVar   = "time"
	timeUnits = "hours since 1900-01-01 00:00:00.0"
)

// NameRE is the pattern measurement names must match to become variables.
const NameRE = "^[a-zA-Z][a-zA-Z0-9_]*$"

var nameRE = regexp.MustCompile(NameRE)

// Write stores the measurement columns of an hourly table in a new NetCDF
// file at path. Coordinates are stored along the time dimension when the
// table has them. Qualifier columns are not stored.
func Write(path string, t *reshape.Table, measurements []string) error {
	if t.Nrow() == 0 {
		return fmt.Errorf("cannot write %q: table has no rows", path)
	}
	for _, m := range measurements {
		if !nameRE.MatchString(m) {
			return fmt.Errorf("measurement name %q does not match %q regular expression", m, NameRE)
		}
		if m == timeVar || m == aqs.Latitude || m == aqs.Longitude {
			return fmt.Errorf("measurement name %q is reserved", m)
		}
	}

	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return err
	}

	hours := make([]int32, t.Nrow())
	for i, ts := range t.Index {
		hours[i] = int32((ts.Unix() - unixSecs1900) / 3600)
	}
	if err := addVar(cw, timeVar, hours, "units", timeUnits, "long_name", "time"); err != nil {
		cw.Close()
		return err
	}

	for _, c := range []struct{ name, units string }{
		{aqs.Latitude, "degrees_north"},
		{aqs.Longitude, "degrees_east"},
	} {
		if !t.Has(c.name) {
			continue
		}
		vals, err := t.Float(c.name)
		if err != nil {
			cw.Close()
			return err
		}
		if err := addVar(cw, c.name, vals, "units", c.units, "long_name", c.name); err != nil {
			cw.Close()
			return err
		}
	}

	for _, m := range measurements {
		vals, err := t.Float(m)
		if err != nil {
			cw.Close()
			return err
		}
		if err := addVar(cw, m, vals, "long_name", m); err != nil {
			cw.Close()
			return err
		}
	}
	return cw.Close()
}

// addVar adds a variable along the time dimension with string attributes
// given as name/value pairs.
func addVar(cw *cdf.CDFWriter, name string, values any, attrs ...string) error {
	keys := make([]string, 0, len(attrs)/2)
	vals := make(map[string]any, len(attrs)/2)
	for i := 0; i+1 < len(attrs); i += 2 {
		keys = append(keys, attrs[i])
		vals[attrs[i]] = attrs[i+1]
	}
	attributes, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return err
	}
	err = cw.AddVar(name, api.Variable{
		Values:     values,
		Dimensions: []string{timeVar},
		Attributes: attributes,
	})
	if err != nil {
		return fmt.Errorf("cannot add variable %q: %w", name, err)
	}
	return nil
}
