// Package autoimport watches a drop directory and stages any workbook
// placed there through the import pipeline. Staging only: a human still
// previews and applies the batch.
package autoimport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/schedcu/core/internal/importer"
	"github.com/schedcu/core/internal/types"
)

// DefaultSettleDelay is how long a file must stop changing before it is
// staged. Spreadsheets are often copied in, not atomically renamed.
const DefaultSettleDelay = 2 * time.Second

const defaultCreatedBy = "auto-import"

// Options tune the watcher.
type Options struct {
	SettleDelay time.Duration
	CreatedBy   string
	Resolution  types.ConflictResolution
}

// Watcher stages .xlsx files dropped into a directory.
type Watcher struct {
	dir  string
	svc  *importer.Service
	log  *logrus.Logger
	opts Options

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup

	// Staged receives batch ids as files are staged. Nil unless a test
	// or caller sets it; sends never block.
	Staged chan string
}

// New creates a watcher for dir. The directory must already exist.
func New(dir string, svc *importer.Service, log *logrus.Logger, opts Options) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("autoimport: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("autoimport: %s is not a directory", dir)
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.CreatedBy == "" {
		opts.CreatedBy = defaultCreatedBy
	}
	return &Watcher{
		dir:    dir,
		svc:    svc,
		log:    log,
		opts:   opts,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Run scans the directory for workbooks already present, then watches
// for new ones until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("autoimport: creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("autoimport: watching %s: %w", w.dir, err)
	}

	if err := w.ScanOnce(ctx); err != nil {
		w.log.WithError(err).Warn("auto-import initial scan failed")
	}

	for {
		select {
		case <-ctx.Done():
			w.drainTimers()
			w.wg.Wait()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !eligible(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("auto-import watch error")
		}
	}
}

// ScanOnce stages every eligible workbook currently in the directory.
// Files the pipeline has already seen are skipped by the hash gate.
func (w *Watcher) ScanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("autoimport: reading %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if !eligible(path) {
			continue
		}
		w.stageFile(ctx, path)
	}
	return nil
}

// eligible filters out temp and partial files: Excel lock files start
// with ~$, and many transfer tools write dotfiles or .tmp suffixes.
func eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".xlsx")
}

// schedule arms (or re-arms) the settle timer for a path. Each write
// event pushes staging out by another settle delay.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.opts.SettleDelay)
		return
	}
	w.wg.Add(1)
	w.timers[path] = time.AfterFunc(w.opts.SettleDelay, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.stageFile(ctx, path)
	})
}

func (w *Watcher) drainTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
}

func (w *Watcher) stageFile(ctx context.Context, path string) {
	log := w.log.WithField("file", filepath.Base(path))

	// Reads and parses can fail transiently while a copy is still in
	// flight, so the whole read-and-stage runs under a short backoff.
	var res *importer.StageResult
	op := func() error {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the watched directory
		if err != nil {
			if os.IsNotExist(err) {
				// Removed between event and settle. Nothing to do.
				return backoff.Permanent(err)
			}
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("empty file")
		}
		res, err = w.svc.Stage(ctx, data, filepath.Base(path), w.opts.CreatedBy, w.opts.Resolution)
		if errors.Is(err, importer.ErrDuplicateFile) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, importer.ErrDuplicateFile) {
			log.Info("auto-import skipped, file already staged")
			return
		}
		if os.IsNotExist(err) {
			return
		}
		log.WithError(err).Warn("auto-import staging failed")
		return
	}

	log.WithFields(logrus.Fields{
		"batch_id": res.Batch.ID,
		"rows":     res.Batch.RowCount,
		"warnings": res.Batch.WarningCount,
	}).Info("auto-import staged batch")

	if w.Staged != nil {
		select {
		case w.Staged <- res.Batch.ID.String():
		default:
		}
	}
}
