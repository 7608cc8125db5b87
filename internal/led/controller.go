// Package led drives a board status LED from camera health.
package led

// Pattern is what the status LED shows.
type Pattern string

const (
	PatternOff   Pattern = "off"
	PatternSolid Pattern = "solid"
	PatternBlink Pattern = "blink"
)

// Controller switches one LED between patterns.
type Controller interface {
	Set(p Pattern) error
	// Name identifies the LED, e.g. its sysfs directory.
	Name() string
}
