package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/uvcnode/internal/camera"
)

// Camera defaults applied by Normalize.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
	DefaultFPS    = 30
)

var (
	// ErrCameraNotFound is returned for ids missing from the file.
	ErrCameraNotFound = errors.New("camera not configured")
	// ErrCameraExists is returned when adding a duplicate id.
	ErrCameraExists = errors.New("camera already configured")

	validID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
)

// CameraSpec is one [[cameras]] entry.
type CameraSpec struct {
	ID        string `toml:"id" json:"id"`
	VendorID  int    `toml:"vendor_id,omitempty" json:"vendor_id,omitempty"`
	ProductID int    `toml:"product_id,omitempty" json:"product_id,omitempty"`
	Serial    string `toml:"serial,omitempty" json:"serial,omitempty"`
	Format    string `toml:"format,omitempty" json:"format,omitempty"`
	Width     int    `toml:"width,omitempty" json:"width,omitempty"`
	Height    int    `toml:"height,omitempty" json:"height,omitempty"`
	FPS       int    `toml:"fps,omitempty" json:"fps,omitempty"`
	Autostart bool   `toml:"autostart" json:"autostart"`

	CreatedAt time.Time `toml:"created_at,omitempty" json:"created_at,omitzero"`
	UpdatedAt time.Time `toml:"updated_at,omitempty" json:"updated_at,omitzero"`
}

// Normalize fills unset stream parameters with the defaults.
func (s *CameraSpec) Normalize() {
	s.Format = strings.ToLower(strings.TrimSpace(s.Format))
	if s.Format == "" {
		s.Format = camera.FormatAny.String()
	}
	if s.Width == 0 {
		s.Width = DefaultWidth
	}
	if s.Height == 0 {
		s.Height = DefaultHeight
	}
	if s.FPS == 0 {
		s.FPS = DefaultFPS
	}
}

// Validate checks the entry after Normalize.
func (s CameraSpec) Validate() error {
	if !validID.MatchString(s.ID) {
		return fmt.Errorf("invalid camera id %q", s.ID)
	}
	if s.VendorID < 0 || s.VendorID > 0xffff || s.ProductID < 0 || s.ProductID > 0xffff {
		return fmt.Errorf("camera %s: usb ids out of range", s.ID)
	}
	if s.Width < 0 || s.Height < 0 || s.FPS < 0 {
		return fmt.Errorf("camera %s: negative stream parameter", s.ID)
	}
	if _, err := camera.ParseFormat(s.Format); err != nil {
		return fmt.Errorf("camera %s: %w", s.ID, err)
	}
	return nil
}

// SameDevice reports whether both entries select the same hardware with
// the same stream parameters. Timestamps are ignored.
func (s CameraSpec) SameDevice(o CameraSpec) bool {
	return s.VendorID == o.VendorID && s.ProductID == o.ProductID && s.Serial == o.Serial &&
		s.Format == o.Format && s.Width == o.Width && s.Height == o.Height && s.FPS == o.FPS &&
		s.Autostart == o.Autostart
}

// CamerasFile is the on-disk layout of cameras.toml.
type CamerasFile struct {
	Version int          `toml:"version"`
	Cameras []CameraSpec `toml:"cameras"`
}

// LoadCameras reads, normalises and validates a cameras file. A missing
// file is an empty list.
func LoadCameras(path string) ([]CameraSpec, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []CameraSpec{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cameras config: %w", err)
	}

	var file CamerasFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse cameras config: %w", err)
	}

	seen := make(map[string]bool, len(file.Cameras))
	specs := make([]CameraSpec, 0, len(file.Cameras))
	for _, spec := range file.Cameras {
		spec.Normalize()
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("camera %s: %w", spec.ID, ErrCameraExists)
		}
		seen[spec.ID] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

// CameraStore edits a cameras file. Every mutation is written back.
type CameraStore struct {
	path string

	mu      sync.Mutex
	cameras map[string]CameraSpec
	now     func() time.Time
}

// NewCameraStore creates a store for path. Call Load before use.
func NewCameraStore(path string) *CameraStore {
	if path == "" {
		path = "cameras.toml"
	}
	return &CameraStore{
		path:    path,
		cameras: make(map[string]CameraSpec),
		now:     time.Now,
	}
}

// Path returns the file backing the store.
func (cs *CameraStore) Path() string {
	return cs.path
}

// Load replaces the in-memory list with the file contents.
func (cs *CameraStore) Load() error {
	specs, err := LoadCameras(cs.path)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cameras = make(map[string]CameraSpec, len(specs))
	for _, s := range specs {
		cs.cameras[s.ID] = s
	}
	return nil
}

// saveLocked writes through a temp file so watchers never see a partial file.
func (cs *CameraStore) saveLocked() error {
	dir := filepath.Dir(cs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(CamerasFile{Version: 1, Cameras: cs.listLocked()})
	if err != nil {
		return fmt.Errorf("failed to marshal cameras config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cameras-*.toml")
	if err != nil {
		return fmt.Errorf("failed to write cameras config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cameras config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cameras config: %w", err)
	}
	if err := os.Rename(tmp.Name(), cs.path); err != nil {
		return fmt.Errorf("failed to write cameras config: %w", err)
	}
	return nil
}

// Add stores a new entry.
func (cs *CameraStore) Add(spec CameraSpec) (CameraSpec, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return CameraSpec{}, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.cameras[spec.ID]; exists {
		return CameraSpec{}, fmt.Errorf("camera %s: %w", spec.ID, ErrCameraExists)
	}

	now := cs.now()
	spec.CreatedAt = now
	spec.UpdatedAt = now
	cs.cameras[spec.ID] = spec
	if err := cs.saveLocked(); err != nil {
		delete(cs.cameras, spec.ID)
		return CameraSpec{}, err
	}
	return spec, nil
}

// Update replaces an existing entry, keeping its creation time.
func (cs *CameraStore) Update(spec CameraSpec) (CameraSpec, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return CameraSpec{}, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	existing, exists := cs.cameras[spec.ID]
	if !exists {
		return CameraSpec{}, fmt.Errorf("camera %s: %w", spec.ID, ErrCameraNotFound)
	}

	spec.CreatedAt = existing.CreatedAt
	spec.UpdatedAt = cs.now()
	cs.cameras[spec.ID] = spec
	if err := cs.saveLocked(); err != nil {
		cs.cameras[spec.ID] = existing
		return CameraSpec{}, err
	}
	return spec, nil
}

// Remove deletes an entry.
func (cs *CameraStore) Remove(id string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	existing, exists := cs.cameras[id]
	if !exists {
		return fmt.Errorf("camera %s: %w", id, ErrCameraNotFound)
	}
	delete(cs.cameras, id)
	if err := cs.saveLocked(); err != nil {
		cs.cameras[id] = existing
		return err
	}
	return nil
}

// Get returns the entry for id.
func (cs *CameraStore) Get(id string) (CameraSpec, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	spec, ok := cs.cameras[id]
	return spec, ok
}

// List returns every entry sorted by id.
func (cs *CameraStore) List() []CameraSpec {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.listLocked()
}

func (cs *CameraStore) listLocked() []CameraSpec {
	specs := make([]CameraSpec, 0, len(cs.cameras))
	for _, s := range cs.cameras {
		specs = append(specs, s)
	}
	slices.SortFunc(specs, func(a, b CameraSpec) int {
		return strings.Compare(a.ID, b.ID)
	})
	return specs
}
