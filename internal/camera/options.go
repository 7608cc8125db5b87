package camera

import (
	"log/slog"
	"time"

	"github.com/smazurov/uvcnode/internal/logging"
)

// DefaultLivenessWindow is how long a camera stays available without a
// frame or a fresh open.
const DefaultLivenessWindow = 3000 * time.Millisecond

type options struct {
	sink     ErrorSink
	logger   *slog.Logger
	now      func() time.Time
	window   time.Duration
	observer func(id string, f *Frame)
}

// Option configures a Camera.
type Option func(*options)

// WithErrorSink routes recorded driver errors to sink. By default errors
// are logged at error level.
func WithErrorSink(sink ErrorSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock replaces time.Now for liveness bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLivenessWindow overrides DefaultLivenessWindow.
func WithLivenessWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithFrameObserver registers fn to run on the driver goroutine after each
// frame is stored. f borrows the driver buffer and is only valid until fn
// returns. fn must not call back into the camera.
func WithFrameObserver(fn func(id string, f *Frame)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		window: DefaultLivenessWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.GetLogger("camera")
	}
	if o.sink == nil {
		logger := o.logger
		o.sink = ErrorSinkFunc(func(err *Error) {
			logger.Error("Camera error", "camera_id", err.CameraID, "op", err.Op, "code", err.Code.Error(), "error", err.Message)
		})
	}
	return o
}
