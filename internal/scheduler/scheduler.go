package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"BetaLens/internal/cache"
	"BetaLens/internal/model"
	"BetaLens/internal/notifier"
	"BetaLens/internal/sensitivity"
)

// Service is the part of the sensitivity pipeline the scheduler drives.
type Service interface {
	Compute(ctx context.Context, coinID string, mode model.Mode, window int) (*model.SensitivityResult, error)
	ExportBatch(ctx context.Context, coinIDs []string, mode model.Mode, limit int) *sensitivity.ExportReport
}

// Notifier delivers messages to a chat.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Job describes one scheduled export.
type Job struct {
	Spec      string
	Coins     []string
	Mode      model.Mode
	Limit     int
	OutputDir string
}

// ErrExportRunning is returned when an export is requested while another is in flight.
var ErrExportRunning = errors.New("export already running")

// RunResult summarizes one export run.
type RunResult struct {
	RunID    string
	Path     string
	Rows     int
	Failures int
}

// Scheduler manages the cron export task.
type Scheduler struct {
	Cron    *cron.Cron
	Service Service
	// Notifier is optional; nil disables export summaries.
	Notifier Notifier
	Job      Job
	Ctx      context.Context

	// running serializes exports from cron, RunNow and chat commands.
	running sync.Mutex
	mu      sync.Mutex
	last    *RunResult
	now     func() time.Time
}

// NewScheduler creates a new Scheduler. Overlapping runs are skipped.
func NewScheduler(ctx context.Context, svc Service, n Notifier, job Job) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		Service:  svc,
		Notifier: n,
		Job:      job,
		Ctx:      ctx,
		now:      time.Now,
	}
}

// Register adds the export task.
func (s *Scheduler) Register() error {
	if len(s.Job.Coins) == 0 {
		return fmt.Errorf("register export task: no coins configured")
	}
	if _, err := s.Cron.AddFunc(s.Job.Spec, s.exportTask); err != nil {
		return fmt.Errorf("register export task: %w", err)
	}
	return nil
}

// RegisterPurge adds a task that sweeps expired entries from store.
func (s *Scheduler) RegisterPurge(spec string, store cache.Store) error {
	if _, err := s.Cron.AddFunc(spec, func() { s.purgeTask(store) }); err != nil {
		return fmt.Errorf("register purge task: %w", err)
	}
	return nil
}

func (s *Scheduler) purgeTask(store cache.Store) {
	n, err := cache.PurgeExpired(s.Ctx, store)
	if err != nil {
		log.Error().Err(err).Str("store", store.Name()).Msg("cache purge failed")
		return
	}
	log.Debug().Int64("removed", n).Str("store", store.Name()).Msg("cache purged")
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Str("cron", s.Job.Spec).Str("mode", string(s.Job.Mode)).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running export.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunNow executes the export immediately. It returns ErrExportRunning
// instead of starting a second concurrent export.
func (s *Scheduler) RunNow() (*RunResult, error) {
	return s.run()
}

// Last returns the most recent successful run, or nil.
func (s *Scheduler) Last() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) exportTask() {
	_, err := s.run()
	switch {
	case errors.Is(err, ErrExportRunning):
		log.Warn().Msg("scheduled export skipped, previous export still running")
	case err != nil:
		log.Error().Err(err).Msg("scheduled export failed")
	}
}

func (s *Scheduler) run() (*RunResult, error) {
	if !s.running.TryLock() {
		return nil, ErrExportRunning
	}
	defer s.running.Unlock()

	runID := uuid.New().String()[:8]
	logger := log.With().Str("run_id", runID).Str("mode", string(s.Job.Mode)).Logger()
	logger.Info().Int("coins", len(s.Job.Coins)).Msg("running export")

	report := s.Service.ExportBatch(s.Ctx, s.Job.Coins, s.Job.Mode, s.Job.Limit)
	rows := report.Rows()

	if err := os.MkdirAll(s.Job.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.Job.OutputDir, timestampedName(s.Job.Mode, s.now()))
	if err := writeFile(path, s.Job.Mode, rows); err != nil {
		return nil, err
	}

	res := &RunResult{RunID: runID, Path: path, Rows: len(rows), Failures: len(report.Failures())}
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	logger.Info().Str("path", path).Int("rows", res.Rows).Int("failures", res.Failures).Msg("export written")
	s.trySend(notifier.FormatExportReport(report, path))
	return res, nil
}

const helpText = `Available commands:
• /beta <coin>
• /atr <coin>
• /stddev <coin>
• /project <coin> <btc-move-%> [mode]
• /export`

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "/beta", "/atr", "/stddev":
		if len(fields) != 2 {
			return helpText
		}
		mode, _ := model.ParseMode(strings.TrimPrefix(cmd, "/"))
		res, err := s.Service.Compute(ctx, fields[1], mode, 0)
		if err != nil {
			return "❌ " + err.Error()
		}
		return notifier.FormatSensitivity(res, nil)
	case "/project":
		if len(fields) < 3 || len(fields) > 4 {
			return helpText
		}
		move, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "%"), 64)
		if err != nil {
			return fmt.Sprintf("❌ invalid move %q", fields[2])
		}
		mode := model.ModeBeta
		if len(fields) == 4 {
			if mode, err = model.ParseMode(fields[3]); err != nil {
				return "❌ " + err.Error()
			}
		}
		res, err := s.Service.Compute(ctx, fields[1], mode, 0)
		if err != nil {
			return "❌ " + err.Error()
		}
		return notifier.FormatSensitivity(res, &move)
	case "/export":
		res, err := s.run()
		if errors.Is(err, ErrExportRunning) {
			return "⏳ export already running, try again later"
		}
		if err != nil {
			return "❌ export failed: " + err.Error()
		}
		if s.Notifier != nil {
			return ""
		}
		return fmt.Sprintf("wrote %d rows to %s", res.Rows, res.Path)
	default:
		return helpText
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}

func writeFile(path string, mode model.Mode, rows []model.ExportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := sensitivity.WriteCSV(f, mode, rows); err != nil {
		f.Close()
		return fmt.Errorf("write export file: %w", err)
	}
	return f.Close()
}

// timestampedName turns altcoin_beta.csv into altcoin_beta_20250102T150405Z.csv.
func timestampedName(mode model.Mode, t time.Time) string {
	base := strings.TrimSuffix(sensitivity.ExportFileName(mode), ".csv")
	return fmt.Sprintf("%s_%s.csv", base, t.UTC().Format("20060102T150405Z"))
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
