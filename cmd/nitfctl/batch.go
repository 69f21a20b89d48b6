package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
)

const (
	jobExtract = "extract"
	jobSplice  = "splice"
)

// BatchConfig is the YAML document read by the batch command.
type BatchConfig struct {
	Workers   int        `yaml:"workers"`
	Audit     string     `yaml:"audit"`
	BackupDir string     `yaml:"backupDir"`
	Jobs      []BatchJob `yaml:"jobs"`
}

// BatchJob is one extract or splice step.
type BatchJob struct {
	Op string `yaml:"op"`

	// extract
	File      string `yaml:"file"`
	Kind      string `yaml:"kind"`
	Index     *int   `yaml:"index"`
	Out       string `yaml:"out"`
	Prefix    string `yaml:"prefix"`
	Subheader *bool  `yaml:"subheader"`

	// splice
	Host     string `yaml:"host"`
	Donor    string `yaml:"donor"`
	NoBackup bool   `yaml:"noBackup"`
}

// LoadBatchConfig reads path and resolves relative paths against its
// directory.
func LoadBatchConfig(path string) (BatchConfig, error) {
	var cfg BatchConfig
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	cfg.Audit = resolve(cfg.Audit)
	cfg.BackupDir = resolve(cfg.BackupDir)
	for i := range cfg.Jobs {
		j := &cfg.Jobs[i]
		j.File = resolve(j.File)
		j.Out = resolve(j.Out)
		j.Host = resolve(j.Host)
		j.Donor = resolve(j.Donor)
		if err := j.check(); err != nil {
			return cfg, fmt.Errorf("job %d: %w", i, err)
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, nil
}

func (j BatchJob) check() error {
	if _, err := nitf.ParseSegmentKind(j.Kind); err != nil {
		return err
	}
	switch j.Op {
	case jobExtract:
		if j.File == "" {
			return errors.New("extract job needs file")
		}
		if j.Index != nil && *j.Index < 0 {
			return fmt.Errorf("invalid index %d", *j.Index)
		}
	case jobSplice:
		if j.Host == "" || j.Donor == "" {
			return errors.New("splice job needs host and donor")
		}
	default:
		return fmt.Errorf("unknown op %q", j.Op)
	}
	return nil
}

// target is the file a job reads or mutates.
func (j BatchJob) target() string {
	if j.Op == jobSplice {
		return j.Host
	}
	return j.File
}

// files lists every container a job touches. Jobs sharing any of them run
// one at a time.
func (j BatchJob) files() []string {
	if j.Op == jobSplice {
		return []string{j.Host, j.Donor}
	}
	return []string{j.File}
}

// BatchResult reports the outcome of one job.
type BatchResult struct {
	Index    int
	Job      BatchJob
	Elements int
	Bytes    int64
	Err      error
}

type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *pathLocks) get(abs string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks == nil {
		p.locks = make(map[string]*sync.Mutex)
	}
	l, ok := p.locks[abs]
	if !ok {
		l = &sync.Mutex{}
		p.locks[abs] = l
	}
	return l
}

// lock takes the locks of every distinct path in sorted absolute-path order
// and returns a func releasing them.
func (p *pathLocks) lock(paths ...string) func() {
	seen := make(map[string]bool, len(paths))
	var keys []string
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = filepath.Clean(path)
		}
		if !seen[abs] {
			seen[abs] = true
			keys = append(keys, abs)
		}
	}
	sort.Strings(keys)
	held := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		l := p.get(k)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// runBatch executes cfg.Jobs on a bounded worker pool. Results are returned
// in job order.
func runBatch(ctx context.Context, cfg BatchConfig, m *common.Metrics) []BatchResult {
	m.Start()
	defer m.Stop()

	results := make([]BatchResult, len(cfg.Jobs))
	work := make(chan int)
	var locks pathLocks
	var wg sync.WaitGroup
	workers := cfg.Workers
	if workers > len(cfg.Jobs) {
		workers = len(cfg.Jobs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				job := cfg.Jobs[i]
				res := BatchResult{Index: i, Job: job}
				if err := ctx.Err(); err != nil {
					res.Err = err
				} else {
					unlock := locks.lock(job.files()...)
					res.Elements, res.Bytes, res.Err = runBatchJob(cfg, job)
					unlock()
				}
				m.JobDone(res.Elements, res.Bytes, res.Err)
				if res.Err != nil {
					common.Logf("batch job %d (%s %s): %v", i, job.Op, job.target(), res.Err)
				}
				results[i] = res
			}
		}()
	}
	for i := range cfg.Jobs {
		work <- i
	}
	close(work)
	wg.Wait()
	return results
}

func runBatchJob(cfg BatchConfig, job BatchJob) (int, int64, error) {
	kind, err := nitf.ParseSegmentKind(job.Kind)
	if err != nil {
		return 0, 0, err
	}
	switch job.Op {
	case jobExtract:
		ej := extractJob{
			File:   job.File,
			Kind:   kind,
			Index:  -1,
			OutDir: job.Out,
			Prefix: job.Prefix,
			Mode:   nitf.DefaultMode(kind),
		}
		if ej.OutDir == "" {
			ej.OutDir = filepath.Dir(job.File)
		}
		if job.Index != nil {
			ej.Index = *job.Index
		}
		if job.Subheader != nil {
			ej.Mode = nitf.DataOnly
			if *job.Subheader {
				ej.Mode = nitf.WithSubheader
			}
		}
		return runExtract(ej)
	case jobSplice:
		res, err := runSplice(spliceJob{
			Kind:      kind,
			Donor:     job.Donor,
			Host:      job.Host,
			Audit:     cfg.Audit,
			BackupDir: cfg.BackupDir,
			NoBackup:  job.NoBackup,
		})
		return res.Result.DonorCount, res.Result.DescriptorBytes + res.Result.DataBytes, err
	}
	return 0, 0, fmt.Errorf("unknown op %q", job.Op)
}

func batchCmd() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Run extract and splice jobs listed in a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "batch YAML file", Required: true},
			&cli.IntFlag{Name: "workers", Usage: "override the worker count"},
			&cli.BoolFlag{Name: "progress", Usage: "print progress to stderr"},
			&cli.DurationFlag{Name: "progress-interval", Usage: "progress refresh interval", Value: time.Second},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadBatchConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			if n := int(cmd.Int("workers")); n > 0 {
				cfg.Workers = n
			}
			m := common.NewMetrics(len(cfg.Jobs))
			stop := func() {}
			if cmd.Bool("progress") {
				ew := cmd.Root().ErrWriter
				if ew == nil {
					ew = os.Stderr
				}
				stop = common.ReportProgress(ew, m, cmd.Duration("progress-interval"))
			}
			results := runBatch(ctx, cfg, m)
			stop()

			w := out(cmd)
			failed := 0
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = "FAIL: " + r.Err.Error()
					failed++
				}
				fmt.Fprintf(w, "[%d] %s %s %s: %d element(s) %s\n", r.Index, r.Job.Op, r.Job.Kind, r.Job.target(), r.Elements, status)
			}
			snap := m.Snapshot()
			fmt.Fprintf(w, "%d job(s), %d element(s), %s in %s\n", snap.Jobs, snap.Elements, common.FormatBytes(snap.Bytes), snap.Elapsed.Round(time.Millisecond))
			if failed > 0 {
				return fmt.Errorf("%d of %d job(s) failed", failed, len(results))
			}
			return nil
		},
	}
}
