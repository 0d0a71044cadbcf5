package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rtm0/aqs/internal/aqs"
	"github.com/rtm0/aqs/internal/config"
	"github.com/rtm0/aqs/internal/logging"
	"github.com/rtm0/aqs/internal/ncfile"
	"github.com/rtm0/aqs/internal/reshape"
	"github.com/rtm0/aqs/internal/vm"
)

// param is one parameter to reshape: its measurement name and the file
// holding its observations.
type param struct {
	name string
	path string
}

// paramsFlag collects repeated -param name=path flags.
type paramsFlag []param

func (p *paramsFlag) String() string {
	var parts []string
	for _, v := range *p {
		parts = append(parts, v.name+"="+v.path)
	}
	return strings.Join(parts, ",")
}

func (p *paramsFlag) Set(s string) error {
	name, path, ok := strings.Cut(s, "=")
	name, path = strings.TrimSpace(name), strings.TrimSpace(path)
	if !ok || name == "" || path == "" {
		return fmt.Errorf("want name=path, got %q", s)
	}
	for _, v := range *p {
		if v.name == name {
			return fmt.Errorf("parameter %q given twice", name)
		}
	}
	*p = append(*p, param{name: name, path: path})
	return nil
}

var (
	params       paramsFlag
	file         = flag.String("file", "", "path to an hourly NetCDF file to export; written when -param is given")
	selectMethod = flag.Bool("selectMethod", false, "keep only the rows collected by the first method seen in each parameter")
	changeFreq   = flag.Bool("changeFreq", false, "reindex every parameter to a strict hourly axis, forward-filling gaps")
	keepLatLon   = flag.Bool("keepLatLon", false, "keep latitude and longitude columns")
	duplicates   = flag.String("duplicates", "none", "how to resolve rows sharing a timestamp: none, first or last")
	verbose      = flag.Bool("verbose", false, "log which columns of each parameter hold more than one distinct value; diagnostic only, the output is unchanged")
)

func init() {
	flag.Var(&params, "param", "parameter to reshape as name=path to a .csv or .json AQS sample data file; repeatable")
}

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of concurrent file loads and requests to Victoria Metrics")
	flag.IntVar(&cfg.RecsPerInsert, "recsPerInsert", cfg.RecsPerInsert, "number of records sent to VM in one batch")
	flag.StringVar(&cfg.VMInsertURL, "vmInsertUrl", cfg.VMInsertURL, "Victoria Metrics insert API URL, e.g. http://localhost:8428/write; empty skips the export")
	flag.StringVar(&cfg.MetricPrefix, "metricPrefix", cfg.MetricPrefix, "metric name prefix")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg, "aqs-reshaper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("Failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	if len(params) == 0 && *file == "" {
		return errors.New("nothing to do: give -param or -file")
	}

	path := *file
	if len(params) > 0 {
		dups, err := reshape.ParseDuplicates(*duplicates)
		if err != nil {
			return err
		}
		opts := reshape.ProcessOptions{
			SelectMethod: *selectMethod,
			ChangeFreq:   *changeFreq,
			DropLatLon:   !*keepLatLon,
			Duplicates:   dups,
		}

		r := reshape.New(logger)
		tables, names, err := processAll(ctx, logger, r, params, opts, cfg.Concurrency)
		if err != nil {
			return err
		}
		joined, err := r.Join(tables, names)
		if err != nil {
			return err
		}
		logger.Info("Joined parameters", "measurements", names, "hours", joined.Nrow())

		if path == "" {
			if cfg.VMInsertURL == "" {
				return errors.New("nowhere to put the joined table: give -file or -vmInsertUrl")
			}
			dir, err := os.MkdirTemp("", "aqs")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			path = filepath.Join(dir, "joined.nc")
		}
		if err := ncfile.Write(path, joined, names); err != nil {
			return err
		}
		logger.Info("Wrote NetCDF file", "path", path)
	}

	if cfg.VMInsertURL == "" {
		return nil
	}
	return export(ctx, logger, cfg, path)
}

// processAll loads and processes every parameter. Parameters without
// hourly data are left out of the result.
func processAll(ctx context.Context, logger *slog.Logger, r *reshape.Reshaper, ps []param, opts reshape.ProcessOptions, concurrency int) ([]*reshape.Table, []string, error) {
	results := make([]*reshape.Table, len(ps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, p := range ps {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			obs, err := aqs.LoadFile(p.path)
			if errors.Is(err, aqs.ErrNoData) {
				logger.Warn("No observations", "measurement", p.name, "path", p.path)
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", p.name, err)
			}
			if *verbose {
				projected, err := r.ProjectUnique(obs, p.name, reshape.ProjectOptions{})
				if err != nil {
					logger.Warn("Could not project observations", "measurement", p.name, "err", err)
				} else {
					logger.Info("Informative columns", "measurement", p.name, "columns", projected.Names(), "rows", projected.Nrow())
				}
			}
			t, err := r.Process(obs, p.name, opts)
			if err != nil {
				return err
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		tables []*reshape.Table
		names  []string
	)
	for i, t := range results {
		if t == nil || t.Nrow() == 0 {
			continue
		}
		tables = append(tables, t)
		names = append(names, ps[i].name)
	}
	if len(tables) == 0 {
		return nil, nil, errors.New("no parameter has hourly data")
	}
	return tables, names, nil
}

// export streams the hourly records of a NetCDF file to Victoria Metrics.
func export(ctx context.Context, logger *slog.Logger, cfg config.Config, path string) error {
	s, err := ncfile.NewScanner(path, cfg.RecsPerInsert)
	if err != nil {
		return fmt.Errorf("could not create a NetCDF scanner: %w", err)
	}
	defer s.Close()
	logger.Info("NetCDF summary", s.Summary()...)

	vmCli, err := vm.NewClient(logger, cfg.VMInsertURL, cfg.Concurrency, cfg.MetricPrefix, s.Measurements())
	if err != nil {
		return fmt.Errorf("could not create new VM client: %w", err)
	}

	recsCh := make(chan []aqs.Record)
	progressCh := make(chan int)
	var failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for recs := range recsCh {
				if err := vmCli.Insert(ctx, recs); err != nil {
					failed.Add(1)
					logger.Error("Could not insert records", "err", err)
				}
				progressCh <- len(recs)
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		var inserted, total float64
		total = float64(s.TotalRecCount())
		start := time.Now()
		for n := range progressCh {
			inserted += float64(n)
			percent := fmt.Sprintf("%.2f%%", 100*inserted/total)
			duration := time.Since(start).Round(1 * time.Second)
			logger.Info("progress", "inserted", percent, "in", duration)
		}
	}()
	for s.Scan() {
		if ctx.Err() != nil {
			break
		}
		recsCh <- s.Records()
	}
	close(recsCh)
	wg.Wait()
	close(progressCh)
	<-done

	if err := s.Err(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d batches could not be inserted", n)
	}
	return ctx.Err()
}
