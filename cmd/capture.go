package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/uvcnode/internal/camera"
	"github.com/smazurov/uvcnode/internal/config"
	"github.com/smazurov/uvcnode/internal/logging"
)

const framePollInterval = 10 * time.Millisecond

// ErrNoFrame is returned when no frame arrives before the timeout.
var ErrNoFrame = errors.New("no frame received")

// CaptureOptions selects the device and stream for a one-shot capture.
type CaptureOptions struct {
	Driver    string
	VendorID  int
	ProductID int
	Serial    string
	Format    string
	Width     int
	Height    int
	FPS       int
	Output    string
	Timeout   time.Duration
}

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	opts := CaptureOptions{
		Driver:  DefaultDriver,
		Format:  "any",
		Width:   config.DefaultWidth,
		Height:  config.DefaultHeight,
		FPS:     config.DefaultFPS,
		Output:  "frame.bin",
		Timeout: 5 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Grab a single frame from a camera",
		Long: `Opens the first device matching --vid, --pid and --serial (zero or empty matches any), ` +
			`starts streaming and writes the raw bytes of the first frame to --output. ` +
			`MJPEG frames are complete JPEG files. Use "-" to write to stdout.`,
		Args: cobra.NoArgs,
		// Skip the server setup the root command runs before every command.
		PersistentPreRun: func(*cobra.Command, []string) {},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			frame, err := Capture(ctx, opts)
			if err != nil {
				return err
			}
			if err := writeFrame(opts.Output, cmd.OutOrStdout(), frame); err != nil {
				return err
			}
			if opts.Output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s %dx%d frame #%d (%d bytes) to %s\n",
					frame.Format, frame.Width, frame.Height, frame.Sequence, len(frame.Data), opts.Output)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Driver, "driver", opts.Driver, "Capture backend (v4l2, sim)")
	f.IntVar(&opts.VendorID, "vid", 0, "USB vendor id, 0 matches any")
	f.IntVar(&opts.ProductID, "pid", 0, "USB product id, 0 matches any")
	f.StringVar(&opts.Serial, "serial", "", "Serial number, empty matches any")
	f.StringVar(&opts.Format, "format", opts.Format, "Frame format (any, mjpeg, yuyv, ...)")
	f.IntVar(&opts.Width, "width", opts.Width, "Width in pixels")
	f.IntVar(&opts.Height, "height", opts.Height, "Height in pixels")
	f.IntVar(&opts.FPS, "fps", opts.FPS, "Frames per second")
	f.StringVarP(&opts.Output, "output", "o", opts.Output, `Output file, "-" for stdout`)
	f.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "How long to wait for a frame")
	return cmd
}

// Capture opens a camera, streams until the first frame or ctx is done, and
// returns that frame.
func Capture(ctx context.Context, opts CaptureOptions) (*camera.Frame, error) {
	format, err := camera.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	drv, err := openDriver(opts.Driver)
	if err != nil {
		return nil, err
	}

	cam := camera.New(drv, opts.VendorID, opts.ProductID, opts.Serial, camera.WithLogger(logging.GetLogger("capture")))
	defer cam.Release()
	defer cam.Close()

	if !cam.IsAvailable() {
		return nil, fmt.Errorf("open camera %04x:%04x: %s", opts.VendorID, opts.ProductID, cam.Err())
	}
	if err := cam.StartRecording(format, opts.Width, opts.Height, opts.FPS); err != nil {
		return nil, fmt.Errorf("start streaming: %w", err)
	}
	defer cam.StopRecording()

	ticker := time.NewTicker(framePollInterval)
	defer ticker.Stop()
	for {
		if f := cam.Frame(); f != nil {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNoFrame, ctx.Err())
		case <-ticker.C:
		}
	}
}

func writeFrame(path string, stdout io.Writer, f *camera.Frame) error {
	if path == "-" {
		_, err := stdout.Write(f.Data)
		return err
	}
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
