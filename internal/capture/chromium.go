package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"mirrorcal/internal/config"
	appLog "mirrorcal/internal/log"
	"mirrorcal/internal/metrics"
)

// Default capture parameters for the mirror grid. They match the snapshot
// defaults of the config.
const (
	DefaultWidth      = 1080
	DefaultHeight     = 640
	DefaultTimeoutSec = 30
)

var (
	errNoURL    = errors.New("capture: URL is required")
	errNoOutput = errors.New("capture: OutputPath is required")
)

// CaptureOptions defines parameters for a Chromium-based screenshot capture.
type CaptureOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar".
	URL string

	// OutputPath is where the PNG screenshot will be written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation. If zero,
	// DefaultTimeoutSec is used.
	Timeout time.Duration

	// Header is sent with every request, e.g. basic auth.
	Header map[string]any
}

func (o *CaptureOptions) withDefaults() error {
	if o.URL == "" {
		return errNoURL
	}
	if o.OutputPath == "" {
		return errNoOutput
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// OptionsFromConfig builds capture options for the /calendar page served at
// listen.
func OptionsFromConfig(cfg *config.Config) CaptureOptions {
	opts := CaptureOptions{
		URL:        "http://" + cfg.Listen + "/calendar",
		OutputPath: cfg.Snapshot.OutputPath,
		Width:      cfg.Snapshot.Width,
		Height:     cfg.Snapshot.Height,
	}
	if cfg.BasicAuth != nil && cfg.BasicAuth.Username != "" {
		opts.Header = map[string]any{"Authorization": basicAuthHeader(cfg.BasicAuth.Username, cfg.BasicAuth.Password)}
	}
	return opts
}

// CaptureCalendarPNG launches a headless Chromium instance via chromedp,
// navigates to opts.URL (the /calendar page), waits for the grid to signal
// that rendering is complete and writes a PNG screenshot.
//
// The /calendar root element carries data-ready="true"; the capture waits
// until `[data-ready="true"]` is visible.
func CaptureCalendarPNG(parentCtx context.Context, opts CaptureOptions) error {
	if err := opts.withDefaults(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if len(opts.Header) > 0 {
		tasks = append(tasks, extraHeaders(opts.Header))
	}
	tasks = append(tasks,
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(500*time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	)

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := writeFileAtomic(opts.OutputPath, png); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}

// Snapshotter captures the grid on demand and records the outcome.
type Snapshotter struct {
	Options CaptureOptions
	Metrics *metrics.Metrics
	// Capture defaults to CaptureCalendarPNG.
	Capture func(context.Context, CaptureOptions) error
}

// Snapshot takes one capture.
func (s *Snapshotter) Snapshot(ctx context.Context) error {
	capture := s.Capture
	if capture == nil {
		capture = CaptureCalendarPNG
	}

	start := time.Now()
	err := capture(ctx, s.Options)
	if s.Metrics != nil {
		s.Metrics.SnapshotDurations.Observe(time.Since(start).Seconds())
		if err != nil {
			s.Metrics.SnapshotFailures.Inc()
		}
	}
	if err != nil {
		return err
	}
	appLog.Debug("snapshot written", "path", s.Options.OutputPath)
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".preview-*.png")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
