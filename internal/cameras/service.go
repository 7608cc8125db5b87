// Package cameras owns the configured cameras of a running node. It opens
// them through the camera core, reconciles them with cameras.toml, keeps
// them alive with a watchdog and reports what happens on the event bus and
// in Prometheus.
package cameras

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/uvcnode/internal/camera"
	"github.com/smazurov/uvcnode/internal/config"
	"github.com/smazurov/uvcnode/internal/driver"
	"github.com/smazurov/uvcnode/internal/events"
	"github.com/smazurov/uvcnode/internal/logging"
	"github.com/smazurov/uvcnode/internal/metrics"
)

// Re-exported so callers need not import config for error checks.
var (
	ErrCameraNotFound = config.ErrCameraNotFound
	ErrCameraExists   = config.ErrCameraExists
)

// ErrInvalidSpec wraps configuration and parameter validation failures.
var ErrInvalidSpec = errors.New("invalid camera spec")

// Watchdog defaults.
const (
	DefaultCheckInterval = 5 * time.Second
	DefaultRetryDelay    = 1 * time.Second
	DefaultMaxRetryDelay = 30 * time.Second

	// The USB add uevent usually precedes the video node, so a reopen on
	// hotplug is retried a few times before the watchdog takes over.
	DefaultHotplugRetryDelay = 500 * time.Millisecond
	DefaultHotplugRetries    = 10
)

// Options configures a Service. Driver is required.
type Options struct {
	Driver   driver.Driver
	EventBus *events.Bus

	LivenessWindow time.Duration
	CheckInterval  time.Duration
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration

	HotplugRetryDelay time.Duration
	HotplugRetries    int

	Logger *slog.Logger
	Now    func() time.Time
}

// StartParams overrides the stream parameters of a camera's spec. Zero
// fields fall back to the CameraSpec.
type StartParams struct {
	Format string
	Width  int
	Height int
	FPS    int
}

// Service manages configured cameras.
type Service struct {
	drv    driver.Driver
	bus    *events.Bus
	logger *slog.Logger
	opts   Options

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is one configured camera. mu guards everything below it.
type entry struct {
	id string

	mu        sync.Mutex
	spec      config.CameraSpec
	cam       *camera.Camera
	streaming bool
	params    StartParams
	closed    bool
	attempts  int
	nextRetry time.Time
	openedAt  time.Time
}

// New creates a service around opts.Driver.
func New(opts Options) *Service {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetryDelay < opts.RetryDelay {
		opts.MaxRetryDelay = max(DefaultMaxRetryDelay, opts.RetryDelay)
	}
	if opts.HotplugRetryDelay <= 0 {
		opts.HotplugRetryDelay = DefaultHotplugRetryDelay
	}
	if opts.HotplugRetries <= 0 {
		opts.HotplugRetries = DefaultHotplugRetries
	}
	if opts.LivenessWindow <= 0 {
		opts.LivenessWindow = camera.DefaultLivenessWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("cameras")
	}
	return &Service{
		drv:     opts.Driver,
		bus:     opts.EventBus,
		logger:  opts.Logger,
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

func (s *Service) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func (s *Service) timestamp() string {
	return s.opts.Now().UTC().Format(time.RFC3339)
}

// cameraOptions wires one camera to the bus and metrics under its
// configured id.
func (s *Service) cameraOptions(id string) []camera.Option {
	return []camera.Option{
		camera.WithLogger(s.logger.With("camera_id", id)),
		camera.WithClock(s.opts.Now),
		camera.WithLivenessWindow(s.opts.LivenessWindow),
		camera.WithErrorSink(camera.ErrorSinkFunc(func(err *camera.Error) {
			s.reportError(id, err)
		})),
		camera.WithFrameObserver(func(_ string, f *camera.Frame) {
			metrics.RecordFrameReceived(id, f.Size)
		}),
	}
}

func (s *Service) reportError(id string, err *camera.Error) {
	code := err.Code.Error()
	s.logger.Warn("Camera error", "camera_id", id, "op", err.Op, "code", code, "error", err.Message)
	metrics.RecordError(id, code)
	s.publish(events.CameraErrorEvent{
		CameraID:  id,
		Op:        err.Op,
		Code:      code,
		Message:   err.Message,
		Timestamp: s.timestamp(),
	})
}

func (s *Service) publishState(e *entry) {
	s.publish(events.CameraStateChangedEvent{
		CameraID:  e.id,
		State:     e.cam.State().String(),
		Available: e.cam.IsAvailable(),
		Timestamp: s.timestamp(),
	})
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("camera %s: %w", id, ErrCameraNotFound)
	}
	return e, nil
}

// Open adds a camera and opens its device. A device that cannot be opened
// still yields a configured, unavailable camera for the watchdog to retry.
// Cameras with Autostart begin streaming right away.
func (s *Service) Open(spec config.CameraSpec) (Status, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}

	s.mu.Lock()
	if _, exists := s.entries[spec.ID]; exists {
		s.mu.Unlock()
		return Status{}, fmt.Errorf("camera %s: %w", spec.ID, ErrCameraExists)
	}
	e := &entry{id: spec.ID, spec: spec}
	e.mu.Lock()
	defer e.mu.Unlock()
	s.entries[spec.ID] = e
	s.mu.Unlock()

	e.cam = camera.New(s.drv, spec.VendorID, spec.ProductID, spec.Serial, s.cameraOptions(spec.ID)...)
	e.openedAt = s.opts.Now()
	if e.cam.IsAvailable() {
		s.logger.Info("Camera opened", "camera_id", spec.ID, "product", e.cam.Product())
	} else {
		s.logger.Warn("Camera unavailable", "camera_id", spec.ID, "error", e.cam.Err())
		e.nextRetry = s.opts.Now()
	}

	if spec.Autostart {
		e.streaming = true
		if e.cam.IsAvailable() {
			if err := s.startLocked(e); err != nil {
				s.logger.Warn("Autostart failed", "camera_id", spec.ID, "error", err)
			}
		}
	}

	s.publish(events.CameraConfiguredEvent{CameraID: spec.ID, Action: "added", Timestamp: s.timestamp()})
	s.publishState(e)
	return e.statusLocked(), nil
}

// Get returns the status of one camera.
func (s *Service) Get(id string) (Status, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Status{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked(), nil
}

// snapshot returns the entries sorted by id.
func (s *Service) snapshot() []*entry {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	return entries
}

// List returns every camera sorted by id.
func (s *Service) List() []Status {
	entries := s.snapshot()
	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.statusLocked())
		e.mu.Unlock()
	}
	return out
}

// Spec returns the configuration a camera was opened with.
func (s *Service) Spec(id string) (config.CameraSpec, error) {
	e, err := s.lookup(id)
	if err != nil {
		return config.CameraSpec{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spec, nil
}

// Start begins streaming. The camera is marked as wanted even when the
// start fails, so the watchdog keeps trying.
func (s *Service) Start(id string, params StartParams) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("camera %s: %w", id, ErrCameraNotFound)
	}

	if params.Format != "" {
		if _, err := camera.ParseFormat(params.Format); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
		}
	}
	if params.Width < 0 || params.Height < 0 || params.FPS < 0 {
		return fmt.Errorf("%w: negative stream parameter", ErrInvalidSpec)
	}
	e.params = params
	e.streaming = true
	// An idle camera drops out of its liveness window; reopen it first.
	if !e.cam.IsAvailable() {
		s.reopenLocked(e)
	}
	return s.startLocked(e)
}

func (s *Service) startLocked(e *entry) error {
	format, width, height, fps := e.streamParams()
	f, err := camera.ParseFormat(format)
	if err != nil {
		return err
	}
	err = e.cam.StartRecording(f, width, height, fps)
	s.publishState(e)
	if errors.Is(err, camera.ErrNotAvailable) {
		return fmt.Errorf("camera %s: %w", e.id, err)
	}
	return err
}

// streamParams merges the start overrides with the CameraSpec.
func (e *entry) streamParams() (format string, width, height, fps int) {
	format, width, height, fps = e.spec.Format, e.spec.Width, e.spec.Height, e.spec.FPS
	if e.params.Format != "" {
		format = e.params.Format
	}
	if e.params.Width > 0 {
		width = e.params.Width
	}
	if e.params.Height > 0 {
		height = e.params.Height
	}
	if e.params.FPS > 0 {
		fps = e.params.FPS
	}
	return format, width, height, fps
}

// Stop halts streaming and tells the watchdog to leave the camera alone.
func (s *Service) Stop(id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.streaming = false
	e.params = StartParams{}
	e.cam.StopRecording()
	s.publishState(e)
	return nil
}

// Frame returns the most recent frame of a camera, or nil when there is no
// fresh one. The frame owns its data and stays valid after the camera stops
// or is reopened.
func (s *Service) Frame(id string) (*camera.Frame, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	f := e.cam.Frame()
	e.mu.Unlock()

	metrics.RecordFrameRead(id, f != nil)
	return f, nil
}

// Close stops and removes a camera.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("camera %s: %w", id, ErrCameraNotFound)
	}

	e.mu.Lock()
	e.closed = true
	e.cam.Close()
	e.cam.Release()
	s.publishState(e)
	e.mu.Unlock()

	metrics.DeleteCameraMetrics(id)
	s.publish(events.CameraConfiguredEvent{CameraID: id, Action: "removed", Timestamp: s.timestamp()})
	s.logger.Info("Camera closed", "camera_id", id)
	return nil
}

// CloseAll closes every camera. Used on shutdown.
func (s *Service) CloseAll() {
	for _, e := range s.snapshot() {
		if err := s.Close(e.id); err != nil {
			s.logger.Debug("Close during shutdown", "camera_id", e.id, "error", err)
		}
	}
}

// Apply reconciles the running cameras with specs: new ones are opened,
// missing ones closed and changed ones reopened. Every spec is attempted;
// the returned error joins the failures.
func (s *Service) Apply(specs []config.CameraSpec) error {
	want := make(map[string]config.CameraSpec, len(specs))
	for _, spec := range specs {
		spec.Normalize()
		want[spec.ID] = spec
	}

	s.mu.RLock()
	current := make(map[string]config.CameraSpec, len(s.entries))
	for id, e := range s.entries {
		e.mu.Lock()
		current[id] = e.spec
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	var errs []error
	for id, spec := range current {
		next, keep := want[id]
		if keep && next.SameDevice(spec) {
			continue
		}
		if err := s.Close(id); err != nil && !errors.Is(err, ErrCameraNotFound) {
			errs = append(errs, err)
		}
	}

	for _, spec := range specs {
		if old, ok := current[spec.ID]; ok && old.SameDevice(want[spec.ID]) {
			continue
		}
		if _, err := s.Open(spec); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("Camera configuration applied", "cameras", len(want), "errors", len(errs))
	return errors.Join(errs...)
}
