package aqs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrNoData is returned when a source holds no observations.
var ErrNoData = errors.New("no observations")

// missingValues are the cell values read as missing.
var missingValues = []string{"", "NA", "NaN", "<nil>", "null"}

// columnTypes pins the types of the known columns so that a column with
// blanks or odd values does not silently turn into something else.
var columnTypes = map[string]series.Type{
	DateLocal:         series.String,
	TimeLocal:         series.String,
	DateGMT:           series.String,
	TimeGMT:           series.String,
	SampleMeasurement: series.Float,
	Qualifier:         series.String,
	SampleDuration:    series.String,
	Latitude:          series.Float,
	Longitude:         series.Float,
	Method:            series.String,
	DateOfLastChange:  series.String,
}

func loadOptions() []dataframe.LoadOption {
	return []dataframe.LoadOption{
		dataframe.NaNValues(missingValues),
		dataframe.WithTypes(columnTypes),
	}
}

// ReadCSV reads an AQS sample data CSV export with a snake_case header row.
func ReadCSV(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r, loadOptions()...)
	if df.Err != nil {
		return df, fmt.Errorf("cannot read CSV: %w", df.Err)
	}
	if df.Nrow() == 0 {
		return df, ErrNoData
	}
	return df, nil
}

type apiHeader struct {
	Status string   `json:"status"`
	Error  []string `json:"error"`
}

type apiResponse struct {
	Header []apiHeader     `json:"Header"`
	Data   json.RawMessage `json:"Data"`
}

const (
	statusSuccess = "Success"
	statusNoData  = "No data matched your selection"
)

// ReadJSON reads either an AQS API response envelope or a bare JSON array of
// row objects.
func ReadJSON(r io.Reader) (dataframe.DataFrame, error) {
	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("cannot read JSON: %w", err)
	}

	var rows []byte
	if first == '{' {
		var resp apiResponse
		if err := json.NewDecoder(br).Decode(&resp); err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("cannot decode AQS response: %w", err)
		}
		for _, h := range resp.Header {
			switch h.Status {
			case statusSuccess:
			case statusNoData:
				return dataframe.DataFrame{}, ErrNoData
			default:
				return dataframe.DataFrame{}, fmt.Errorf("AQS response status %q: %s", h.Status, strings.Join(h.Error, "; "))
			}
		}
		rows = resp.Data
	} else if rows, err = io.ReadAll(br); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("cannot read JSON: %w", err)
	}

	// gota leaves an empty frame behind on decode errors, so the rows are
	// checked here to tell broken input from an empty selection.
	var objs []json.RawMessage
	if len(bytes.TrimSpace(rows)) > 0 && !bytes.Equal(bytes.TrimSpace(rows), []byte("null")) {
		if err := json.Unmarshal(rows, &objs); err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("cannot decode rows: %w", err)
		}
	}
	if len(objs) == 0 {
		return dataframe.DataFrame{}, ErrNoData
	}

	df := dataframe.ReadJSON(bytes.NewReader(rows), loadOptions()...)
	if df.Err != nil {
		return df, fmt.Errorf("cannot load rows: %w", df.Err)
	}
	return df, nil
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// LoadFile reads an observation table from a .csv or .json file.
func LoadFile(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".json":
		return ReadJSON(f)
	default:
		return dataframe.DataFrame{}, fmt.Errorf("unsupported observation file %q (want .csv or .json)", path)
	}
}
