package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rtm0/aqs/internal/aqs"
)

// Client is a Victoria Metrics client capable of inserting hourly AQS
// records via various protocols.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    string
	metricPrefix string
	measurements []string
	recToText    recToTextFunc
}

const metricPrefixRE = "^[a-zA-Z0-9]+$"

// NewClient creates a new VM client. measurements names the values of the
// records passed to Insert, in order.
func NewClient(logger *slog.Logger, insertURL string, maxConns int, metricPrefix string, measurements []string) (*Client, error) {
	url, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	matches, err := regexp.Match(metricPrefixRE, []byte(metricPrefix))
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}
	if len(measurements) == 0 {
		return nil, fmt.Errorf("no measurements to insert")
	}

	apiParams := apiParamsFuncs[url.Path]
	if apiParams == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}
	q := url.Query()
	for name, value := range apiParams(metricPrefix, measurements) {
		q.Add(name, value)
	}
	url.RawQuery = q.Encode()

	recToText := recToTextFuncs[url.Path]
	if recToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}

	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
			},
		},
		insertURL:    url.String(),
		metricPrefix: metricPrefix,
		measurements: measurements,
		recToText:    recToText,
	}, nil
}

// Insert inserts hourly records into Victoria Metrics.
func (c *Client) Insert(ctx context.Context, recs []aqs.Record) error {
	body := recsToText(recs, c.metricPrefix, c.measurements, c.recToText)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.insertURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	res, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("could not post data: %w", err)
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Error("Failed to drain response body", "err", err)
	}
	if res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return nil
}

type apiParamsFunc func(string, []string) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

// Records carry millisecond timestamps.
func influxDBAPIParams(string, []string) map[string]string {
	return map[string]string{"precision": "ms"}
}

func csvAPIParams(metricPrefix string, measurements []string) map[string]string {
	cols := []string{
		"1:time:unix_ms",
		"2:label:la",
		"3:label:lo",
	}
	for i, m := range measurements {
		cols = append(cols, fmt.Sprintf("%d:metric:%s_%s", i+4, metricPrefix, m))
	}
	return map[string]string{"format": strings.Join(cols, ",")}
}

type recToTextFunc func(*strings.Builder, *aqs.Record, string, []string) bool

// recsToText converts multiple hourly records to text.
func recsToText(recs []aqs.Record, metricPrefix string, measurements []string, recToText recToTextFunc) io.Reader {
	var sb strings.Builder
	for _, r := range recs {
		if recToText(&sb, &r, metricPrefix, measurements) {
			sb.WriteString("\n")
		}
	}
	return strings.NewReader(sb.String())
}

var recToTextFuncs = map[string]recToTextFunc{
	"/influx/write":        recToInfluxDB,
	"/influx/api/v2/write": recToInfluxDB,
	"/write":               recToInfluxDB,
	"/api/v2/write":        recToInfluxDB,
	"/api/v1/import/csv":   recToCSV,
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// recToInfluxDB converts an hourly record into InfluxDB line protocol v2 and
// appends it to the string builder. Missing values are left out; a record
// without any value is skipped and false is returned.
func recToInfluxDB(sb *strings.Builder, r *aqs.Record, metricPrefix string, measurements []string) bool {
	var fields []string
	for i, v := range r.Values {
		if math.IsNaN(v) {
			continue
		}
		fields = append(fields, measurements[i]+"="+formatFloat(v))
	}
	if len(fields) == 0 {
		return false
	}
	sb.WriteString(metricPrefix)
	if !math.IsNaN(r.Latitude) && !math.IsNaN(r.Longitude) {
		sb.WriteString(fmt.Sprintf(",la=%.4f,lo=%.4f", r.Latitude, r.Longitude))
	}
	sb.WriteString(" ")
	sb.WriteString(strings.Join(fields, ","))
	sb.WriteString(" ")
	sb.WriteString(strconv.FormatInt(r.Timestamp, 10))
	return true
}

// recToCSV converts an hourly record into a CSV record and appends it to the
// string builder. Missing values are left empty.
func recToCSV(sb *strings.Builder, r *aqs.Record, _ string, _ []string) bool {
	sb.WriteString(strconv.FormatInt(r.Timestamp, 10))
	for _, v := range []float64{r.Latitude, r.Longitude} {
		sb.WriteString(",")
		if !math.IsNaN(v) {
			sb.WriteString(fmt.Sprintf("%.4f", v))
		}
	}
	for _, v := range r.Values {
		sb.WriteString(",")
		if !math.IsNaN(v) {
			sb.WriteString(formatFloat(v))
		}
	}
	return true
}
