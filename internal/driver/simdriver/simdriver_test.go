package simdriver

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/uvcnode/internal/driver"
)

var webcam = driver.Descriptor{
	VendorID:     0x046d,
	ProductID:    0x0825,
	SerialNumber: "ABC123",
	Product:      "Webcam C270",
}

func openHandle(t *testing.T, drv *Driver) (driver.Context, driver.Device, driver.Handle) {
	t.Helper()
	ctx, err := drv.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	dev, err := ctx.FindDevice(0, 0, "")
	if err != nil {
		t.Fatalf("FindDevice: %v", err)
	}
	devh, err := dev.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ctx, dev, devh
}

func TestRegistered(t *testing.T) {
	drv, err := driver.Open("sim")
	if err != nil {
		t.Fatalf("driver.Open(sim): %v", err)
	}
	ctx, err := drv.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ctx.Exit()

	dev, err := ctx.FindDevice(DefaultVendorID, DefaultProductID, DefaultSerial)
	if err != nil {
		t.Fatalf("default device not found: %v", err)
	}
	defer dev.Unref()

	desc, err := dev.Descriptor()
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if desc.Product != "Simulated Camera" {
		t.Errorf("product = %q", desc.Product)
	}
}

func TestFindDevice(t *testing.T) {
	drv := New(
		DeviceSpec{Descriptor: webcam},
		DeviceSpec{Descriptor: driver.Descriptor{VendorID: 0x046d, ProductID: 0x0825, SerialNumber: "XYZ"}},
	)
	ctx, _ := drv.Init()
	defer ctx.Exit()

	tests := []struct {
		name    string
		vid     int
		pid     int
		serial  string
		want    string
		wantErr error
	}{
		{"wildcard", 0, 0, "", "ABC123", nil},
		{"by serial", 0x046d, 0x0825, "XYZ", "XYZ", nil},
		{"vendor only", 0x046d, 0, "", "ABC123", nil},
		{"wrong product", 0x046d, 0x9999, "", "", driver.ErrNoDevice},
		{"wrong serial", 0, 0, "nope", "", driver.ErrNoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := ctx.FindDevice(tt.vid, tt.pid, tt.serial)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer dev.Unref()
			desc, _ := dev.Descriptor()
			if desc.SerialNumber != tt.want {
				t.Errorf("serial = %q, want %q", desc.SerialNumber, tt.want)
			}
		})
	}
}

func TestUnplug(t *testing.T) {
	drv := New(DeviceSpec{Descriptor: webcam})
	ctx, dev, devh := openHandle(t, drv)
	defer ctx.Exit()
	defer dev.Unref()
	defer devh.Close()

	drv.Device(0).Unplug()

	if _, err := ctx.FindDevice(0, 0, ""); !errors.Is(err, driver.ErrNoDevice) {
		t.Errorf("FindDevice after unplug: %v", err)
	}
	if _, err := dev.Descriptor(); !errors.Is(err, driver.ErrNoDevice) {
		t.Errorf("Descriptor after unplug: %v", err)
	}
	ctrl, _ := devh.StreamControl(driver.FrameFormatYUYV, 640, 480, 30)
	if err := devh.StartStreaming(ctrl, func(*driver.RawFrame) {}); !errors.Is(err, driver.ErrNoDevice) {
		t.Errorf("StartStreaming after unplug: %v", err)
	}

	drv.Device(0).Plug()
	devs, err := ctx.Devices()
	if err != nil || len(devs) != 1 {
		t.Fatalf("Devices after replug: %v, %d", err, len(devs))
	}
	devs[0].Unref()
}

func TestStreamControl(t *testing.T) {
	modes := []Mode{
		{Format: driver.FrameFormatYUYV, Width: 640, Height: 480, FPS: 30},
		{Format: driver.FrameFormatMJPEG, Width: 1280, Height: 720, FPS: 30},
	}
	drv := New(DeviceSpec{Descriptor: webcam, Modes: modes})
	ctx, dev, devh := openHandle(t, drv)
	defer ctx.Exit()
	defer dev.Unref()
	defer devh.Close()

	tests := []struct {
		name       string
		format     driver.FrameFormat
		w, h, fps  int
		wantFormat driver.FrameFormat
		wantErr    error
	}{
		{"exact", driver.FrameFormatYUYV, 640, 480, 30, driver.FrameFormatYUYV, nil},
		{"any picks mode", driver.FrameFormatAny, 1280, 720, 30, driver.FrameFormatMJPEG, nil},
		{"uncompressed", driver.FrameFormatUncompressed, 640, 480, 30, driver.FrameFormatYUYV, nil},
		{"compressed", driver.FrameFormatCompressed, 1280, 720, 30, driver.FrameFormatMJPEG, nil},
		{"unsupported", driver.FrameFormatH264, 640, 480, 30, 0, driver.ErrInvalidMode},
		{"zero fps", driver.FrameFormatYUYV, 640, 480, 0, 0, driver.ErrInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, err := devh.StreamControl(tt.format, tt.w, tt.h, tt.fps)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && ctrl.Format != tt.wantFormat {
				t.Errorf("format = %v, want %v", ctrl.Format, tt.wantFormat)
			}
		})
	}
}

func TestStreaming_PushAndStop(t *testing.T) {
	drv := New(DeviceSpec{Descriptor: webcam})
	ctx, dev, devh := openHandle(t, drv)
	defer ctx.Exit()
	defer dev.Unref()

	ctrl, err := devh.StreamControl(driver.FrameFormatGray8, 8, 4, 30)
	if err != nil {
		t.Fatalf("StreamControl: %v", err)
	}

	var got []uint32
	if err := devh.StartStreaming(ctrl, func(f *driver.RawFrame) { got = append(got, f.Sequence) }); err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}
	if err := devh.StartStreaming(ctrl, func(*driver.RawFrame) {}); !errors.Is(err, driver.ErrBusy) {
		t.Errorf("second StartStreaming err = %v, want ErrBusy", err)
	}

	sim := drv.Device(0)
	sim.PushPattern()
	sim.PushPattern()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("sequences = %v, want [1 2]", got)
	}

	devh.StopStreaming()
	devh.StopStreaming()
	if sim.Streaming() {
		t.Error("stream still active after stop")
	}
	if sim.PushPattern() {
		t.Error("push after stop must report false")
	}
	if drv.Counters.StreamStops.Load() != 1 {
		t.Errorf("stream stops = %d, want 1", drv.Counters.StreamStops.Load())
	}

	devh.Close()
	devh.Close()
	if drv.Counters.Closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", drv.Counters.Closes.Load())
	}
}

func TestStreaming_Generator(t *testing.T) {
	drv := New(DeviceSpec{Descriptor: webcam, Generate: true})
	ctx, dev, devh := openHandle(t, drv)
	defer ctx.Exit()
	defer dev.Unref()

	ctrl, _ := devh.StreamControl(driver.FrameFormatYUYV, 16, 8, 100)

	var mu sync.Mutex
	frames := 0
	if err := devh.StartStreaming(ctrl, func(f *driver.RawFrame) {
		mu.Lock()
		frames++
		mu.Unlock()
		if len(f.Data) != 16*8*2 {
			t.Errorf("frame size = %d", len(f.Data))
		}
	}); err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := frames
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	devh.Close()

	mu.Lock()
	after := frames
	mu.Unlock()
	if after < 3 {
		t.Fatalf("generator delivered %d frames, want at least 3", after)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if frames != after {
		t.Errorf("callback ran after Close: %d -> %d", after, frames)
	}
}

func TestUnplug_StallsGenerator(t *testing.T) {
	drv := New(DeviceSpec{Descriptor: webcam, Generate: true})
	ctx, dev, devh := openHandle(t, drv)
	defer ctx.Exit()
	defer dev.Unref()
	defer devh.Close()

	ctrl, _ := devh.StreamControl(driver.FrameFormatYUYV, 4, 4, 200)
	var mu sync.Mutex
	frames := 0
	_ = devh.StartStreaming(ctrl, func(*driver.RawFrame) {
		mu.Lock()
		frames++
		mu.Unlock()
	})

	drv.Device(0).Unplug()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	before := frames
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if frames != before {
		t.Errorf("unplugged device kept delivering: %d -> %d", before, frames)
	}
}

func TestInjectedErrors(t *testing.T) {
	drv := New(DeviceSpec{Descriptor: webcam, OpenErr: driver.ErrAccess})
	drv.SetInitError(driver.ErrNoMem)
	if _, err := drv.Init(); !errors.Is(err, driver.ErrNoMem) {
		t.Fatalf("Init err = %v", err)
	}
	drv.SetInitError(nil)

	ctx, err := drv.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ctx.Exit()

	drv.SetListError(driver.ErrIO)
	if _, err := ctx.Devices(); !errors.Is(err, driver.ErrIO) {
		t.Errorf("Devices err = %v", err)
	}

	dev, err := ctx.FindDevice(0, 0, "")
	if err != nil {
		t.Fatalf("FindDevice: %v", err)
	}
	defer dev.Unref()
	if _, err := dev.Open(); !errors.Is(err, driver.ErrAccess) {
		t.Errorf("Open err = %v", err)
	}
}

func TestPattern_MJPEG(t *testing.T) {
	data := fillPattern(nil, driver.FrameFormatMJPEG, 32, 16, 1)
	if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Errorf("MJPEG frame does not start with SOI marker")
	}
}

func TestPattern_Scrolls(t *testing.T) {
	buf := make([]byte, frameSize(driver.FrameFormatGray8, 64, 2))
	first := append([]byte(nil), fillPattern(buf, driver.FrameFormatGray8, 64, 2, 1)...)
	second := fillPattern(buf, driver.FrameFormatGray8, 64, 2, 2)
	if bytes.Equal(first, second) {
		t.Error("consecutive frames are identical")
	}
}

func TestFrameSize(t *testing.T) {
	tests := []struct {
		format driver.FrameFormat
		want   int
	}{
		{driver.FrameFormatYUYV, 640 * 480 * 2},
		{driver.FrameFormatRGB, 640 * 480 * 3},
		{driver.FrameFormatNV12, 640 * 480 * 3 / 2},
		{driver.FrameFormatGray8, 640 * 480},
		{driver.FrameFormatSBGGR8, 640 * 480},
	}
	for _, tt := range tests {
		if got := frameSize(tt.format, 640, 480); got != tt.want {
			t.Errorf("frameSize(%v) = %d, want %d", tt.format, got, tt.want)
		}
	}
}
