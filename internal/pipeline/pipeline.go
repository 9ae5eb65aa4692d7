// Package pipeline turns the raw song catalog and activity log into the
// star schema. A run has two phases: the song phase writes the songs and
// artists dimensions, and the log phase writes users, time and the
// songplays fact table, reading songs and artists back from the output
// root. The log phase therefore requires a completed song phase.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/franz/playlake/internal/frame"
	"github.com/franz/playlake/internal/lake"
	"github.com/franz/playlake/internal/metrics"
	"github.com/franz/playlake/internal/report"
	"github.com/franz/playlake/internal/source"
	"github.com/franz/playlake/internal/star"
	"github.com/franz/playlake/internal/store"
	"github.com/franz/playlake/internal/util"
)

// Phase names
const (
	PhaseSongData = "song_data"
	PhaseLogData  = "log_data"
)

// Config holds pipeline configuration
type Config struct {
	Input       string // local directory or s3://bucket/prefix
	Output      string
	SongPattern string
	LogPattern  string
	Fs          afero.Fs       // input and output filesystem, OS by default
	Location    *time.Location // zone of start_time, time.Local by default
	Concurrency int
	Partitions  int
	RunID       string

	Ledger  *store.Store        // optional
	Events  *report.EventLogger // optional
	Metrics *metrics.Pipeline   // optional
	Stager  *source.S3Stager    // required for s3 inputs
}

// Pipeline runs the ETL
type Pipeline struct {
	cfg    Config
	lake   *lake.Store
	loader *source.Loader
}

// Result summarizes a run
type Result struct {
	RunID    string
	Catalog  *source.Result
	Activity *source.Result
	Tables   []*lake.Manifest
	Duration time.Duration
}

// Table returns the manifest of a written table, or nil
func (r *Result) Table(name string) *lake.Manifest {
	for _, m := range r.Tables {
		if m.Table == name {
			return m
		}
	}
	return nil
}

// New validates cfg and creates a Pipeline
func New(cfg *Config) (*Pipeline, error) {
	c := *cfg
	if c.Input == "" {
		return nil, fmt.Errorf("input root is required: %w", util.ErrInvalidConfig)
	}
	if c.Output == "" {
		return nil, fmt.Errorf("output root is required: %w", util.ErrInvalidConfig)
	}
	if source.IsS3URI(c.Output) {
		return nil, fmt.Errorf("output root must be a local path, got %s: %w", c.Output, util.ErrInvalidConfig)
	}
	if source.IsS3URI(c.Input) && c.Stager == nil {
		return nil, fmt.Errorf("s3 input %s needs a stager: %w", c.Input, util.ErrInvalidConfig)
	}
	if c.SongPattern == "" {
		c.SongPattern = source.DefaultSongPattern
	}
	if c.LogPattern == "" {
		c.LogPattern = source.DefaultLogPattern
	}
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Partitions <= 0 {
		c.Partitions = c.Concurrency
	}
	if c.Partitions > MaxPartitions {
		return nil, fmt.Errorf("partitions %d exceeds %d: %w", c.Partitions, MaxPartitions, util.ErrInvalidConfig)
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}

	return &Pipeline{
		cfg: c,
		lake: lake.New(&lake.Config{
			Fs:      c.Fs,
			Root:    c.Output,
			RunID:   c.RunID,
			Workers: c.Concurrency,
		}),
		loader: source.New(&source.Config{
			Fs:          c.Fs,
			Concurrency: c.Concurrency,
			Partitions:  c.Partitions,
			Logger:      c.Events,
			Metrics:     c.Metrics,
		}),
	}, nil
}

// RunID returns the id of the run
func (p *Pipeline) RunID() string {
	return p.cfg.RunID
}

// Lake returns the output store
func (p *Pipeline) Lake() *lake.Store {
	return p.lake
}

// Run executes both phases. Any error aborts the run; tables already
// written stay in place and the ledger records the run as failed.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	res = &Result{RunID: p.cfg.RunID}

	p.cfg.Events.SetRunID(p.cfg.RunID)
	if p.cfg.Ledger != nil {
		if err := p.cfg.Ledger.StartRun(&store.Run{ID: p.cfg.RunID, Input: p.cfg.Input, Output: p.cfg.Output, StartedAt: start}); err != nil {
			return nil, err
		}
	}
	p.cfg.Events.LogRun("started", p.cfg.Input, p.cfg.Output, 0, nil)
	util.InfoLog("Run %s: %s -> %s", p.cfg.RunID, p.cfg.Input, p.cfg.Output)

	defer func() {
		res.Duration = time.Since(start)
		status := store.StatusSucceeded
		if err != nil {
			status = store.StatusFailed
			p.cfg.Events.LogError("run", err)
		}
		if p.cfg.Ledger != nil {
			if ferr := p.cfg.Ledger.FinishRun(p.cfg.RunID, err); ferr != nil {
				util.WarnLog("Failed to record run outcome: %v", ferr)
			}
		}
		p.cfg.Metrics.ObserveRun(res.Duration, err)
		p.cfg.Events.LogRun(status, p.cfg.Input, p.cfg.Output, res.Duration, err)
	}()

	input, err := p.resolveInput(ctx)
	if err != nil {
		return res, err
	}

	catalog, tables, err := p.ProcessSongData(ctx, input)
	if err != nil {
		return res, err
	}
	res.Catalog = catalog
	res.Tables = append(res.Tables, tables...)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	activity, tables, err := p.ProcessLogData(ctx, input)
	if err != nil {
		return res, err
	}
	res.Activity = activity
	res.Tables = append(res.Tables, tables...)

	return res, nil
}

// resolveInput stages s3 inputs to local disk and returns the local root
func (p *Pipeline) resolveInput(ctx context.Context) (string, error) {
	if !source.IsS3URI(p.cfg.Input) {
		return p.cfg.Input, nil
	}

	root, n, err := p.cfg.Stager.Stage(ctx, p.cfg.Input, p.cfg.SongPattern, p.cfg.LogPattern)
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", p.cfg.Input, err)
	}
	util.InfoLog("Staged %d objects to %s", n, root)
	return root, nil
}

// ProcessSongData loads the song catalog under input and writes the songs
// and artists dimensions.
func (p *Pipeline) ProcessSongData(ctx context.Context, input string) (*source.Result, []*lake.Manifest, error) {
	start := time.Now()

	paths, err := source.Discover(p.cfg.Fs, input, p.cfg.SongPattern)
	if err != nil {
		return nil, nil, err
	}
	util.InfoLog("Loading %d song files", len(paths))

	catalog, loaded, err := p.loader.LoadCatalog(ctx, paths)
	if err != nil {
		return nil, nil, err
	}
	p.recordInputs(loaded)

	songs := Songs(catalog, p.observe)
	artists := Artists(catalog, p.observe)

	songsManifest, err := writeTable(ctx, p, star.Songs, songs)
	if err != nil {
		return nil, nil, err
	}
	artistsManifest, err := writeTable(ctx, p, star.Artists, artists)
	if err != nil {
		return nil, nil, err
	}

	p.finishPhase(PhaseSongData, start)
	return loaded, []*lake.Manifest{songsManifest, artistsManifest}, nil
}

// ProcessLogData loads the activity log under input and writes the users
// and time dimensions and the songplays fact table. Songs and artists are
// read from the output root and must have been written already; otherwise
// the error wraps util.ErrTableNotReady.
func (p *Pipeline) ProcessLogData(ctx context.Context, input string) (*source.Result, []*lake.Manifest, error) {
	start := time.Now()

	// fail before writing anything when the song phase has not completed
	for _, name := range []string{star.SongsTable, star.ArtistsTable} {
		if _, err := p.lake.ReadManifest(name); err != nil {
			return nil, nil, fmt.Errorf("log phase needs %s: %w", name, err)
		}
	}

	paths, err := source.Discover(p.cfg.Fs, input, p.cfg.LogPattern)
	if err != nil {
		return nil, nil, err
	}
	util.InfoLog("Loading %d log files", len(paths))

	activity, loaded, err := p.loader.LoadActivity(ctx, paths)
	if err != nil {
		return nil, nil, err
	}
	p.recordInputs(loaded)

	plays := Plays(activity, p.cfg.Location, p.observe)
	users := Users(plays, p.observe)
	times := Times(plays, p.observe)

	usersManifest, err := writeTable(ctx, p, star.Users, users)
	if err != nil {
		return nil, nil, err
	}
	timeManifest, err := writeTable(ctx, p, star.TimeDim, times)
	if err != nil {
		return nil, nil, err
	}

	songs, err := readTable(ctx, p, star.Songs)
	if err != nil {
		return nil, nil, err
	}
	artists, err := readTable(ctx, p, star.Artists)
	if err != nil {
		return nil, nil, err
	}

	facts, err := AssignSongplayIDs(Songplays(plays, songs, artists, times, p.observe))
	if err != nil {
		return nil, nil, err
	}
	songplaysManifest, err := writeTable(ctx, p, star.Songplays, facts)
	if err != nil {
		return nil, nil, err
	}

	p.finishPhase(PhaseLogData, start)
	return loaded, []*lake.Manifest{usersManifest, timeManifest, songplaysManifest}, nil
}

func writeTable[T any, F any](ctx context.Context, p *Pipeline, t lake.Table[T, F], f *frame.Frame[T]) (*lake.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := lake.Write(ctx, p.lake, t, f)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	path := p.lake.TablePath(t.Name)
	util.InfoLog("Wrote %s: %d rows in %d partitions (%s)", t.Name, m.Rows, len(m.Partitions), elapsed.Round(time.Millisecond))
	p.cfg.Events.LogWrite(t.Name, path, m.Rows, m.Files, m.Bytes, elapsed)
	p.cfg.Metrics.ObserveWrite(t.Name, m.Rows, m.Files, m.Bytes)
	if p.cfg.Ledger != nil {
		err := p.cfg.Ledger.RecordTableWrite(&store.TableWrite{
			RunID:      p.cfg.RunID,
			Table:      t.Name,
			Path:       path,
			Rows:       m.Rows,
			Partitions: len(m.Partitions),
			Files:      m.Files,
			Bytes:      m.Bytes,
			WrittenAt:  m.WrittenAt,
		})
		if err != nil {
			util.WarnLog("Failed to record write of %s: %v", t.Name, err)
		}
	}

	return m, nil
}

func readTable[T any, F any](ctx context.Context, p *Pipeline, t lake.Table[T, F]) (*frame.Frame[T], error) {
	f, err := lake.Read(ctx, p.lake, t, frame.WithWorkers(p.cfg.Concurrency))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s back: %w", t.Name, err)
	}
	p.cfg.Events.LogRead(t.Name, p.lake.TablePath(t.Name), f.Count())
	return f, nil
}

func (p *Pipeline) observe(stage string, rowsIn, rowsOut int) {
	if rowsOut < rowsIn {
		util.DebugLog("%s: %d -> %d rows", stage, rowsIn, rowsOut)
	}
	p.cfg.Events.LogStage(stage, rowsIn, rowsOut)
	p.cfg.Metrics.ObserveStage(stage, rowsIn, rowsOut)
	if p.cfg.Ledger != nil {
		err := p.cfg.Ledger.RecordStageCount(&store.StageCount{RunID: p.cfg.RunID, Stage: stage, RowsIn: rowsIn, RowsOut: rowsOut})
		if err != nil {
			util.WarnLog("Failed to record stage %s: %v", stage, err)
		}
	}
}

func (p *Pipeline) recordInputs(res *source.Result) {
	if p.cfg.Ledger == nil {
		return
	}

	files := make([]*store.InputFile, len(res.Files))
	for i, f := range res.Files {
		files[i] = &store.InputFile{
			RunID:     p.cfg.RunID,
			Dataset:   f.Dataset,
			Path:      f.Path,
			Records:   f.Records,
			Malformed: f.Malformed,
			SizeBytes: f.Bytes,
		}
	}
	if err := p.cfg.Ledger.RecordInputFiles(files); err != nil {
		util.WarnLog("Failed to record input files: %v", err)
	}
}

func (p *Pipeline) finishPhase(phase string, start time.Time) {
	elapsed := time.Since(start)
	p.cfg.Events.LogPhase(phase, "ok", elapsed)
	p.cfg.Metrics.ObservePhase(phase, elapsed)
	util.SuccessLog("Phase %s done in %s", phase, elapsed.Round(time.Millisecond))
}
