package driver

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	Register("test-registry", func() (Driver, error) { return nil, ErrNotSupported })

	if !slices.Contains(Names(), "test-registry") {
		t.Fatalf("Names() = %v, missing test-registry", Names())
	}
	if _, err := Open("test-registry"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Open err = %v, want factory error", err)
	}

	_, err := Open("does-not-exist")
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !strings.Contains(err.Error(), "test-registry") {
		t.Errorf("error %q does not list available drivers", err)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, Success},
		{"code", ErrBusy, ErrBusy},
		{"wrapped", fmt.Errorf("open /dev/video0: %w", ErrAccess), ErrAccess},
		{"foreign", errors.New("boom"), ErrOther},
		{"success value", Success, Success},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorCodeNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, code := range Codes() {
		name := code.Error()
		if !strings.HasPrefix(name, "UVC_ERROR_") {
			t.Errorf("code %d has name %q", int(code), name)
		}
		if seen[name] {
			t.Errorf("duplicate name %q", name)
		}
		seen[name] = true
	}
	if got := ErrorCode(-42).Error(); got != "UVC_ERROR(-42)" {
		t.Errorf("unknown code name = %q", got)
	}
}

func TestFrameFormat(t *testing.T) {
	if FrameFormatAny != FrameFormatUnknown {
		t.Error("any must alias unknown")
	}
	if FrameFormatMJPEG.String() != "mjpeg" || FrameFormatNV12.String() != "nv12" {
		t.Errorf("unexpected names %q %q", FrameFormatMJPEG, FrameFormatNV12)
	}
	if FrameFormat(100).String() != "unknown" {
		t.Error("out of range format must print unknown")
	}
	if !FrameFormatH264.Compressed() || FrameFormatYUYV.Compressed() {
		t.Error("compressed classification is wrong")
	}
}

func TestFrameFormatText(t *testing.T) {
	text, err := FrameFormatSGRBG8.MarshalText()
	if err != nil || string(text) != "sgrbg8" {
		t.Fatalf("MarshalText = %q, %v", text, err)
	}
	var f FrameFormat
	if err := f.UnmarshalText([]byte("MJPEG")); err != nil || f != FrameFormatMJPEG {
		t.Errorf("UnmarshalText = %v, %v", f, err)
	}
	if err := f.UnmarshalText([]byte("webp")); err == nil {
		t.Error("expected error for unknown name")
	}
}
