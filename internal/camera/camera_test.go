package camera

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/uvcnode/internal/driver"
	"github.com/smazurov/uvcnode/internal/driver/simdriver"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sinkRecorder struct {
	mu   sync.Mutex
	errs []*Error
}

func (s *sinkRecorder) ReportError(err *Error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

func (s *sinkRecorder) last() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[len(s.errs)-1]
}

var testDescriptor = driver.Descriptor{
	VendorID:     0x046d,
	ProductID:    0x0825,
	SerialNumber: "ABC123",
	Manufacturer: "Logitech",
	Product:      "Webcam C270",
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(clk *fakeClock, sink ErrorSink) []Option {
	return []Option{WithClock(clk.Now), WithErrorSink(sink), WithLogger(quietLogger())}
}

func openTestCamera(t *testing.T, spec simdriver.DeviceSpec) (*Camera, *simdriver.Driver, *fakeClock, *sinkRecorder) {
	t.Helper()
	drv := simdriver.New(spec)
	clk := newFakeClock()
	sink := &sinkRecorder{}
	cam := New(drv, int(spec.Descriptor.VendorID), int(spec.Descriptor.ProductID), spec.Descriptor.SerialNumber, testOptions(clk, sink)...)
	if !cam.IsAvailable() {
		t.Fatalf("expected camera to be available, err=%q", cam.Err())
	}
	return cam, drv, clk, sink
}

func TestNew_NoSuchDevice(t *testing.T) {
	drv := simdriver.New(simdriver.DeviceSpec{Descriptor: testDescriptor})
	clk := newFakeClock()
	sink := &sinkRecorder{}

	cam := New(drv, 0x1234, 0x5678, "nope", testOptions(clk, sink)...)

	if cam.IsAvailable() {
		t.Fatal("expected camera to be unavailable")
	}
	if !cam.IsClosed() {
		t.Error("expected IsClosed to be true")
	}
	if cam.State() != StateClosed {
		t.Errorf("state = %v, want %v", cam.State(), StateClosed)
	}
	if cam.Err() != "No such device" {
		t.Errorf("Err() = %q, want %q", cam.Err(), "No such device")
	}
	if sink.count() != 1 {
		t.Fatalf("sink received %d errors, want 1", sink.count())
	}
	if got := sink.last(); got.Op != "find_device" || got.Code != driver.ErrNoDevice {
		t.Errorf("unexpected reported error: %+v", got)
	}
	if got := drv.Counters.Exits.Load(); got != 1 {
		t.Errorf("context exits = %d, want 1 (partial open must be released)", got)
	}

	cam.Close()
	if got := drv.Counters.Exits.Load(); got != 1 {
		t.Errorf("context exits after Close = %d, want 1", got)
	}
}

func TestNew_InitFailure(t *testing.T) {
	drv := simdriver.New()
	drv.SetInitError(driver.ErrAccess)
	sink := &sinkRecorder{}

	cam := New(drv, 0, 0, "", testOptions(newFakeClock(), sink)...)

	if cam.IsAvailable() {
		t.Fatal("expected camera to be unavailable")
	}
	if cam.Err() != "Access denied" {
		t.Errorf("Err() = %q, want %q", cam.Err(), "Access denied")
	}
	if sink.count() != 1 {
		t.Errorf("sink received %d errors, want 1", sink.count())
	}
}

func TestNew_OpenFailure(t *testing.T) {
	drv := simdriver.New(simdriver.DeviceSpec{Descriptor: testDescriptor, OpenErr: driver.ErrBusy})
	cam := New(drv, 0, 0, "", testOptions(newFakeClock(), &sinkRecorder{})...)

	if cam.Err() != "Resource busy" {
		t.Errorf("Err() = %q, want %q", cam.Err(), "Resource busy")
	}
	if drv.Counters.Unrefs.Load() != 1 || drv.Counters.Exits.Load() != 1 {
		t.Errorf("expected device unref and context exit, got unrefs=%d exits=%d",
			drv.Counters.Unrefs.Load(), drv.Counters.Exits.Load())
	}
}

func TestNew_NilDriver(t *testing.T) {
	cam := New(nil, 0, 0, "", testOptions(newFakeClock(), &sinkRecorder{})...)
	if cam.IsAvailable() {
		t.Fatal("expected camera to be unavailable")
	}
	if cam.Err() == "" {
		t.Error("expected an error text")
	}
}

func TestNewInert(t *testing.T) {
	cam := NewInert(WithLogger(quietLogger()))

	if cam.State() != StateClosed {
		t.Errorf("state = %v, want closed", cam.State())
	}
	if cam.IsAvailable() {
		t.Error("inert camera must not be available")
	}
	if err := cam.StartRecording(FormatYUYV, 640, 480, 30); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("StartRecording err = %v, want ErrNotAvailable", err)
	}
	if cam.State() != StateClosed {
		t.Errorf("state after StartRecording = %v, want closed", cam.State())
	}
	if f := cam.Frame(); f != nil {
		t.Errorf("expected nil frame, got %+v", f)
	}
	if cam.VendorID() != -1 || cam.ProductID() != -1 {
		t.Errorf("ids = %d/%d, want -1/-1", cam.VendorID(), cam.ProductID())
	}
	if cam.Product() != "" || cam.Manufacturer() != "" || cam.Serial() != "" {
		t.Error("expected empty descriptor strings")
	}
	cam.StopRecording()
	cam.Close()
	cam.Release()
}

func TestOpen_StampsLiveness(t *testing.T) {
	cam, _, clk, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	if cam.State() != StateOpen {
		t.Errorf("state = %v, want open", cam.State())
	}
	if !cam.LastActivity().Equal(clk.Now().Truncate(time.Millisecond)) {
		t.Errorf("LastActivity = %v, want %v", cam.LastActivity(), clk.Now())
	}
	if cam.Err() != "" {
		t.Errorf("Err() = %q, want empty", cam.Err())
	}
}

func TestDescriptorQueries(t *testing.T) {
	cam, _, _, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	if cam.VendorID() != 0x046d {
		t.Errorf("VendorID = %#x", cam.VendorID())
	}
	if cam.ProductID() != 0x0825 {
		t.Errorf("ProductID = %#x", cam.ProductID())
	}
	if cam.Product() != "Webcam C270" {
		t.Errorf("Product = %q", cam.Product())
	}
	if cam.Manufacturer() != "Logitech" {
		t.Errorf("Manufacturer = %q", cam.Manufacturer())
	}
	if cam.Serial() != "ABC123" {
		t.Errorf("Serial = %q", cam.Serial())
	}
}

func TestDescriptorQueries_FetchFailure(t *testing.T) {
	spec := simdriver.DeviceSpec{Descriptor: testDescriptor, DescriptorErr: driver.ErrIO}
	cam, _, _, _ := openTestCamera(t, spec)
	defer cam.Release()

	if cam.VendorID() != -1 || cam.ProductID() != -1 {
		t.Errorf("ids = %d/%d, want -1/-1", cam.VendorID(), cam.ProductID())
	}
	if cam.Product() != "" || cam.Manufacturer() != "" || cam.Serial() != "" {
		t.Error("expected empty strings on descriptor failure")
	}
	if cam.Err() != "" {
		t.Errorf("descriptor failures must not be recorded, got %q", cam.Err())
	}
}

func TestIsAvailable_LivenessWindow(t *testing.T) {
	cam, drv, clk, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	clk.Advance(2999 * time.Millisecond)
	if !cam.IsAvailable() {
		t.Fatal("expected camera to be available inside the window")
	}

	if err := cam.StartRecording(FormatYUYV, 640, 480, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	clk.Advance(1 * time.Millisecond)
	if cam.IsAvailable() {
		t.Fatal("expected camera to be unavailable after 3000ms without activity")
	}
	if cam.State() != StateStreaming {
		t.Errorf("state = %v, want streaming (liveness does not stop hardware)", cam.State())
	}

	drv.Device(0).PushPattern()
	if !cam.IsAvailable() {
		t.Error("expected a delivered frame to refresh liveness")
	}
}

func TestWithLivenessWindow(t *testing.T) {
	drv := simdriver.New(simdriver.DeviceSpec{Descriptor: testDescriptor})
	clk := newFakeClock()
	cam := New(drv, 0, 0, "", append(testOptions(clk, &sinkRecorder{}), WithLivenessWindow(10*time.Second))...)
	defer cam.Release()

	clk.Advance(9 * time.Second)
	if !cam.IsAvailable() {
		t.Error("expected camera to be available inside a 10s window")
	}
}

func TestStartRecording(t *testing.T) {
	cam, drv, _, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	if err := cam.StartRecording(FormatMJPEG, 1280, 720, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if cam.State() != StateStreaming {
		t.Errorf("state = %v, want streaming", cam.State())
	}
	ctrl, ok := drv.Device(0).Control()
	if !ok {
		t.Fatal("expected an active stream")
	}
	if ctrl.Format != driver.FrameFormatMJPEG || ctrl.Width != 1280 || ctrl.Height != 720 || ctrl.FPS != 30 {
		t.Errorf("unexpected stream control %+v", ctrl)
	}

	// Already streaming: no second start.
	if err := cam.StartRecording(FormatYUYV, 640, 480, 15); err != nil {
		t.Errorf("second StartRecording: %v", err)
	}
	if got := drv.Counters.StreamStarts.Load(); got != 1 {
		t.Errorf("stream starts = %d, want 1", got)
	}
}

func TestStartRecording_NegotiationFailure(t *testing.T) {
	spec := simdriver.DeviceSpec{
		Descriptor: testDescriptor,
		Modes:      []simdriver.Mode{{Format: driver.FrameFormatYUYV, Width: 640, Height: 480, FPS: 30}},
	}
	cam, drv, _, sink := openTestCamera(t, spec)
	defer cam.Release()

	err := cam.StartRecording(FormatH264, 1920, 1080, 60)
	if err == nil {
		t.Fatal("expected negotiation error")
	}
	var camErr *Error
	if !errors.As(err, &camErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if camErr.Code != driver.ErrInvalidMode || camErr.Op != "stream_control" {
		t.Errorf("unexpected error %+v", camErr)
	}
	if !errors.Is(err, driver.ErrInvalidMode) {
		t.Error("expected errors.Is to match the driver code")
	}
	if cam.Err() != "Mode not supported" {
		t.Errorf("Err() = %q", cam.Err())
	}
	if sink.count() != 1 {
		t.Errorf("sink received %d errors, want 1", sink.count())
	}
	if cam.State() != StateOpen {
		t.Errorf("state = %v, want open after failed start", cam.State())
	}
	if drv.Counters.StreamStarts.Load() != 0 {
		t.Error("stream must not be started after failed negotiation")
	}

	// A later valid request succeeds and clears the error text.
	if err := cam.StartRecording(FormatYUYV, 640, 480, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if cam.Err() != "" {
		t.Errorf("Err() = %q, want empty after success", cam.Err())
	}
}

func TestStartRecording_StartFailure(t *testing.T) {
	spec := simdriver.DeviceSpec{Descriptor: testDescriptor, StartErr: driver.ErrNoMem}
	cam, _, _, _ := openTestCamera(t, spec)
	defer cam.Release()

	err := cam.StartRecording(FormatYUYV, 640, 480, 30)
	if !errors.Is(err, driver.ErrNoMem) {
		t.Fatalf("err = %v, want ErrNoMem", err)
	}
	if cam.Err() != "Insufficient memory" {
		t.Errorf("Err() = %q", cam.Err())
	}
	if cam.State() != StateOpen {
		t.Errorf("state = %v, want open", cam.State())
	}
}

func TestStopRecording(t *testing.T) {
	cam, drv, _, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	if err := cam.StartRecording(FormatYUYV, 320, 240, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	drv.Device(0).PushPattern()

	cam.StopRecording()
	if cam.State() != StateOpen {
		t.Errorf("state = %v, want open", cam.State())
	}
	if drv.Device(0).Streaming() {
		t.Error("expected driver stream to be stopped")
	}
	if f := cam.Frame(); f != nil {
		t.Error("expected no frame after stop")
	}
	if drv.Device(0).Push(&driver.RawFrame{}) {
		t.Error("push after stop must not reach a callback")
	}
}

func TestStopRecording_Unavailable(t *testing.T) {
	cam, drv, clk, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	if err := cam.StartRecording(FormatYUYV, 320, 240, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	clk.Advance(5 * time.Second)

	cam.StopRecording()
	if cam.State() != StateStreaming {
		t.Errorf("state = %v, stop on an unavailable camera must be a no-op", cam.State())
	}
	if drv.Counters.StreamStops.Load() != 0 {
		t.Error("expected no driver stop")
	}

	cam.Close()
	if drv.Counters.StreamStops.Load() != 1 {
		t.Errorf("stream stops = %d, want 1 after Close", drv.Counters.StreamStops.Load())
	}
}

func TestFrame_ReadCap(t *testing.T) {
	cam, drv, _, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	if f := cam.Frame(); f != nil {
		t.Fatal("expected nil frame before streaming")
	}
	if err := cam.StartRecording(FormatGray8, 4, 2, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if f := cam.Frame(); f != nil {
		t.Fatal("expected nil frame before any delivery")
	}

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	drv.Device(0).Push(&driver.RawFrame{Format: driver.FrameFormatGray8, Width: 4, Height: 2, Data: data, Sequence: 7})

	first := cam.Frame()
	if first == nil {
		t.Fatal("first Frame() returned nil")
	}
	if first.Count != 1 || first.Width != 4 || first.Height != 2 || first.Size != 8 || first.Sequence != 7 {
		t.Errorf("unexpected first frame %+v", first)
	}
	if first.Format != FormatGray8 {
		t.Errorf("format = %v", first.Format)
	}

	second := cam.Frame()
	if second == nil {
		t.Fatal("second Frame() returned nil")
	}
	if second.Count <= first.Count {
		t.Errorf("counter must increase: first=%d second=%d", first.Count, second.Count)
	}

	if third := cam.Frame(); third != nil {
		t.Errorf("third Frame() = %+v, want nil", third)
	}
	if fourth := cam.Frame(); fourth != nil {
		t.Error("stale frame must stay unavailable")
	}

	drv.Device(0).Push(&driver.RawFrame{Format: driver.FrameFormatGray8, Width: 4, Height: 2, Data: data, Sequence: 8})
	next := cam.Frame()
	if next == nil || next.Count != 1 || next.Sequence != 8 {
		t.Errorf("expected fresh frame after new delivery, got %+v", next)
	}
}

func TestFrame_Clone(t *testing.T) {
	cam, drv, _, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	if err := cam.StartRecording(FormatGray8, 2, 1, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	buf := []byte{10, 20}
	drv.Device(0).Push(&driver.RawFrame{Format: driver.FrameFormatGray8, Width: 2, Height: 1, Data: buf})

	f := cam.Frame()
	buf[0] = 99
	if f.Data[0] != 10 {
		t.Error("frame data must not alias the driver buffer")
	}

	kept := f.Clone()
	kept.Data[1] = 0
	if f.Data[1] != 20 {
		t.Errorf("clone shares data with the frame: %v", f.Data)
	}
}

// Rows of one pattern frame are identical, so a frame whose first and last
// rows differ was copied while the driver rewrote its buffer.
func TestFrame_ConcurrentDelivery(t *testing.T) {
	cam, drv, _, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})
	defer cam.Release()

	const width, height = 320, 240
	if err := cam.StartRecording(FormatYUYV, width, height, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				drv.Device(0).PushPattern()
			}
		}
	}()

	stride := width * 2
	copied, torn := 0, 0
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		f := cam.Frame().Clone()
		if f == nil || len(f.Data) != stride*height {
			continue
		}
		copied++
		first := f.Data[:stride]
		last := f.Data[len(f.Data)-stride:]
		if string(first) != string(last) {
			torn++
		}
	}
	close(done)
	wg.Wait()

	if copied == 0 {
		t.Fatal("no frames copied")
	}
	if torn != 0 {
		t.Errorf("frames copied=%d torn=%d", copied, torn)
	}
}

func TestFrameObserver(t *testing.T) {
	drv := simdriver.New(simdriver.DeviceSpec{Descriptor: testDescriptor})
	var mu sync.Mutex
	var seen []uint32
	observer := func(id string, f *Frame) {
		mu.Lock()
		seen = append(seen, f.Sequence)
		mu.Unlock()
	}
	cam := New(drv, 0, 0, "", append(testOptions(newFakeClock(), &sinkRecorder{}), WithFrameObserver(observer))...)
	defer cam.Release()

	if err := cam.StartRecording(FormatGray8, 1, 1, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	drv.Device(0).Push(&driver.RawFrame{Data: []byte{1}, Sequence: 1})
	drv.Device(0).Push(&driver.RawFrame{Data: []byte{2}, Sequence: 2})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("observer saw %v, want [1 2]", seen)
	}
}

func TestClose_Idempotent(t *testing.T) {
	cam, drv, _, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})

	if err := cam.StartRecording(FormatYUYV, 320, 240, 30); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	cam.Close()
	cam.Close()
	cam.Release()

	if cam.State() != StateClosed {
		t.Errorf("state = %v, want closed", cam.State())
	}
	c := &drv.Counters
	if c.StreamStops.Load() != 1 || c.Closes.Load() != 1 || c.Unrefs.Load() != 1 || c.Exits.Load() != 1 {
		t.Errorf("expected single release of each resource, got stops=%d closes=%d unrefs=%d exits=%d",
			c.StreamStops.Load(), c.Closes.Load(), c.Unrefs.Load(), c.Exits.Load())
	}
	if cam.IsAvailable() {
		t.Error("closed camera must not be available")
	}
}

func TestRelease_SharedHandles(t *testing.T) {
	cam, drv, _, _ := openTestCamera(t, simdriver.DeviceSpec{Descriptor: testDescriptor})

	shared := cam.Clone()
	if cam.Handles() != 2 {
		t.Fatalf("handles = %d, want 2", cam.Handles())
	}
	if shared.ID() != cam.ID() {
		t.Error("clone must share device state")
	}

	shared.Release()
	shared.Release()
	if !cam.IsAvailable() {
		t.Fatal("releasing one of two handles must keep the device alive")
	}
	if drv.Counters.Closes.Load() != 0 {
		t.Error("device closed while a handle remains")
	}
	if cam.Handles() != 1 {
		t.Errorf("handles = %d, want 1 (double release must not count twice)", cam.Handles())
	}

	cam.Release()
	if drv.Counters.Closes.Load() != 1 || drv.Counters.Exits.Load() != 1 {
		t.Errorf("expected teardown exactly once, got closes=%d exits=%d",
			drv.Counters.Closes.Load(), drv.Counters.Exits.Load())
	}
	if shared.State() != StateClosed {
		t.Error("shared state must be closed after last release")
	}
}

func TestConcurrentDelivery(t *testing.T) {
	drv := simdriver.New(simdriver.DeviceSpec{Descriptor: testDescriptor, Generate: true})
	cam := New(drv, 0, 0, "", WithLogger(quietLogger()), WithErrorSink(&sinkRecorder{}))
	defer cam.Release()

	if err := cam.StartRecording(FormatYUYV, 64, 48, 200); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var got *Frame
	for time.Now().Before(deadline) {
		if f := cam.Frame(); f != nil {
			got = f
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got == nil {
		t.Fatal("no frame delivered by generator")
	}
	if got.Width != 64 || got.Height != 48 || got.Size != 64*48*2 {
		t.Errorf("unexpected frame metadata %+v", got)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if f := cam.Frame(); f != nil && f.Count > maxFrameReads {
					t.Errorf("frame handed out with count %d", f.Count)
				}
				_ = cam.IsAvailable()
			}
		}()
	}
	wg.Wait()

	cam.StopRecording()
}
