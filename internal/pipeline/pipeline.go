// Package pipeline runs one merge: read, map, derive dates, materialize,
// append, back up and commit, with a single run date for the whole run.
package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pricing-cli/internal/appender"
	"github.com/sells-group/pricing-cli/internal/backup"
	"github.com/sells-group/pricing-cli/internal/dates"
	"github.com/sells-group/pricing-cli/internal/mapping"
	"github.com/sells-group/pricing-cli/internal/materialize"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/store"
	"github.com/sells-group/pricing-cli/internal/table"
)

// Runner orchestrates merge runs.
type Runner struct {
	reader          table.Reader
	masterReader    table.Reader
	writer          table.Writer
	mapper          *mapping.Mapper
	backups         *backup.Manager
	store           store.Store
	now             func() time.Time
	createIfMissing bool
	backupAlways    bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore records every run in the ledger.
func WithStore(st store.Store) Option {
	return func(r *Runner) { r.store = st }
}

// WithMasterReader reads the master with a different reader than the
// input, for example to select another sheet.
func WithMasterReader(reader table.Reader) Option {
	return func(r *Runner) { r.masterReader = reader }
}

// WithClock sets the clock the run date is read from.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithCreateIfMissing treats a missing master as an empty table.
func WithCreateIfMissing(create bool) Option {
	return func(r *Runner) { r.createIfMissing = create }
}

// WithBackupAlways backs up the master in new-file mode too.
func WithBackupAlways(always bool) Option {
	return func(r *Runner) { r.backupAlways = always }
}

// New creates a Runner.
func New(reader table.Reader, writer table.Writer, mapper *mapping.Mapper, backups *backup.Manager, opts ...Option) *Runner {
	r := &Runner{
		reader:  reader,
		writer:  writer,
		mapper:  mapper,
		backups: backups,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.masterReader == nil {
		r.masterReader = reader
	}
	return r
}

// Request describes one merge.
type Request struct {
	InputPath      string
	MasterPath     string
	OutputPath     string // new-file destination; defaults next to the master
	Mode           model.WriteMode
	RuleSet        string // rule-set name; empty selects by signature
	Strict         bool
	SkipDuplicates bool
}

func (req *Request) normalize() error {
	if req.InputPath == "" {
		return eris.New("pipeline: input path is required")
	}
	if req.MasterPath == "" {
		return eris.New("pipeline: master path is required")
	}
	if req.Mode == "" {
		req.Mode = model.WriteModeNewFile
	}
	if !req.Mode.Valid() {
		return eris.Errorf("pipeline: unknown write mode %q", req.Mode)
	}
	if req.Mode == model.WriteModeInPlace {
		req.OutputPath = req.MasterPath
	} else if req.OutputPath == "" {
		req.OutputPath = appender.DefaultOutput(req.MasterPath)
	}
	if !table.Writable(req.OutputPath) {
		return model.NewError(model.KindUnwritableFile, "output format cannot be written", nil).
			With("path", req.OutputPath).
			With("mode", string(req.Mode))
	}
	return nil
}

// Run executes req. On failure nothing has been written except, for
// in-place runs that failed at commit, the backup.
func (r *Runner) Run(ctx context.Context, req Request) (*Summary, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: run")
	}

	runDate := model.Day(r.now())
	sum := &Summary{
		RunDate:    runDate,
		Mode:       req.Mode,
		InputPath:  req.InputPath,
		MasterPath: req.MasterPath,
	}
	sum.RunID = r.createRun(ctx, req, runDate)

	log := zap.L().With(
		zap.String("run_id", sum.RunID),
		zap.String("input", req.InputPath),
		zap.String("master", req.MasterPath),
		zap.String("mode", string(req.Mode)),
	)
	log.Info("pipeline: starting merge", zap.String("run_date", runDate.Format(model.DateLayout)))

	step := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		duration := time.Since(start).Milliseconds()
		if err != nil {
			log.Error("pipeline: step failed",
				zap.String("step", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return err
		}
		log.Debug("pipeline: step complete",
			zap.String("step", name),
			zap.Int64("duration_ms", duration),
		)
		return nil
	}

	err := r.run(ctx, req, runDate, sum, step)
	if err != nil {
		sum.Status = model.RunStatusFailed
		r.failRun(ctx, sum.RunID, err)
		return nil, err
	}
	r.completeRun(ctx, sum)

	log.Info("pipeline: merge complete",
		zap.String("status", string(sum.Status)),
		zap.String("rule_set", sum.RuleSet),
		zap.Int("rows_read", sum.RowsRead),
		zap.Int("rows_mapped", sum.RowsMapped),
		zap.Int("rows_appended", sum.RowsAppended),
		zap.Int("duplicates_skipped", sum.DuplicatesSkipped),
		zap.Int64("first_id", sum.FirstID),
		zap.Int64("last_id", sum.LastID),
		zap.String("output", sum.OutputPath),
		zap.String("backup", sum.BackupPath),
	)
	return sum, nil
}

func (r *Runner) run(ctx context.Context, req Request, runDate time.Time, sum *Summary, step func(string, func() error) error) error {
	var master, input *table.Table
	masterExists := false

	err := step("read", func() error {
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			master, masterExists, err = r.readMaster(req.MasterPath)
			return err
		})
		g.Go(func() error {
			var err error
			input, err = r.reader.Read(req.InputPath)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return err
	}
	sum.RowsRead = input.Len()

	var mapped *mapping.MappedTable
	if err := step("map", func() error {
		var err error
		mapped, err = r.mapper.Map(input, req.RuleSet)
		return err
	}); err != nil {
		return err
	}
	sum.RuleSet = mapped.RuleSet
	sum.Score = mapped.Score
	sum.UnmappedColumns = mapped.Unmapped
	sum.addDropped(mapped.Dropped...)

	var derived *dates.Derived
	if err := step("dates", func() error {
		var err error
		derived, err = dates.Derive(mapped, runDate, dates.Options{Strict: req.Strict})
		return err
	}); err != nil {
		return err
	}
	sum.addDropped(derived.Dropped...)

	var rows []model.MasterRow
	if err := step("materialize", func() error {
		var err error
		rows, err = materialize.Materialize(derived)
		return err
	}); err != nil {
		return err
	}
	sum.RowsMapped = len(rows)

	engine := appender.NewEngine(r.writer, appender.WithSkipDuplicates(req.SkipDuplicates))
	var merged *appender.Merged
	if err := step("merge", func() error {
		var err error
		merged, err = engine.Merge(master, rows)
		return err
	}); err != nil {
		return err
	}
	for _, i := range merged.Skipped {
		sum.addDropped(model.DroppedRow{SourceRow: derived.Rows[i].SourceRow, Reason: model.DropDuplicate})
	}
	sum.DuplicatesSkipped = len(merged.Skipped)
	sum.RowsAppended = merged.AppendedCount()
	sum.FirstID, sum.LastID = merged.FirstID, merged.LastID
	sum.MasterRowsBefore = merged.ExistingRows
	sum.MasterRowsAfter = merged.Table.Len()
	sum.DroppedColumns = merged.DroppedColumns

	if sum.RowsAppended == 0 {
		sum.Status = model.RunStatusNoop
		zap.L().Info("pipeline: nothing to append, master left untouched", zap.String("run_id", sum.RunID))
		return nil
	}

	if err := step("backup", func() error {
		var err error
		sum.BackupPath, err = r.backup(req, masterExists)
		return err
	}); err != nil {
		return err
	}

	if err := step("commit", func() error {
		return engine.Commit(merged, appender.Target{
			Mode:   req.Mode,
			Master: req.MasterPath,
			Path:   req.OutputPath,
			Backup: sum.BackupPath,
		})
	}); err != nil {
		return err
	}
	sum.OutputPath = req.OutputPath
	sum.Status = model.RunStatusComplete
	return nil
}

// readMaster returns the master table and whether the file exists. A
// missing master is an empty table only when creation is allowed.
func (r *Runner) readMaster(path string) (*table.Table, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, model.NewError(model.KindUnreadableFile, "stat master", err).With("path", path)
		}
		if !r.createIfMissing {
			return nil, false, model.NewError(model.KindSourceMissing, "master file does not exist", err).
				With("path", path)
		}
		zap.L().Warn("pipeline: master missing, starting a new one", zap.String("path", path))
		return nil, false, nil
	}
	t, err := r.masterReader.Read(path)
	if err != nil {
		return nil, true, err
	}
	return t, true, nil
}

// backup protects the master before it is written. In-place runs abort on
// any failure except a master that does not exist yet; new-file runs only
// back up when configured to and treat failure as a warning.
func (r *Runner) backup(req Request, masterExists bool) (string, error) {
	switch req.Mode {
	case model.WriteModeInPlace:
		path, err := r.backups.Backup(req.MasterPath)
		if err == nil {
			return path, nil
		}
		if model.IsKind(err, model.KindSourceMissing) && !masterExists {
			zap.L().Warn("pipeline: no master to back up, writing a new master",
				zap.String("path", req.MasterPath),
			)
			return "", nil
		}
		if model.IsKind(err, model.KindSourceMissing) {
			return "", model.NewError(model.KindBackupFailed, "master vanished before backup", err).
				With("path", req.MasterPath)
		}
		return "", err
	default:
		if !r.backupAlways || !masterExists {
			return "", nil
		}
		path, err := r.backups.Backup(req.MasterPath)
		if err != nil {
			zap.L().Warn("pipeline: backup failed, continuing in new-file mode",
				zap.String("path", req.MasterPath),
				zap.Error(err),
			)
			return "", nil
		}
		return path, nil
	}
}

func (r *Runner) createRun(ctx context.Context, req Request, runDate time.Time) string {
	if r.store == nil {
		return uuid.New().String()
	}
	run, err := r.store.CreateRun(ctx, model.Run{
		InputPath:  req.InputPath,
		MasterPath: req.MasterPath,
		Mode:       req.Mode,
		RunDate:    runDate,
	})
	if err != nil {
		zap.L().Warn("pipeline: failed to record run", zap.Error(err))
		return uuid.New().String()
	}
	return run.ID
}

func (r *Runner) completeRun(ctx context.Context, sum *Summary) {
	if r.store == nil {
		return
	}
	if err := r.store.CompleteRun(ctx, sum.RunID, sum.Status, sum.Result()); err != nil {
		zap.L().Warn("pipeline: failed to record run result", zap.String("run_id", sum.RunID), zap.Error(err))
	}
}

func (r *Runner) failRun(ctx context.Context, runID string, cause error) {
	if r.store == nil {
		return
	}
	if err := r.store.FailRun(ctx, runID, cause.Error()); err != nil {
		zap.L().Warn("pipeline: failed to record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}
