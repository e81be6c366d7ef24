// Package bytesize parses and formats byte quantities used in vault
// configuration (high-water marks, copy buffer sizes).
package bytesize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Common byte size units.
const (
	B  int64 = 1
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
	TB int64 = 1024 * GB
	PB int64 = 1024 * TB
)

// sizePattern matches size strings like "100MB", "1.5 GB", "1024"
var sizePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([a-zA-Z]*)\s*$`)

// Parse parses a byte size string like "100MB", "1.5GB", or "1024" into bytes.
// Supported units: B, KB, MB, GB, TB, PB (case-insensitive, Kubernetes-style
// "Gi" accepted). If no unit is specified, bytes are assumed.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Plain integers keep full int64 precision.
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size not allowed: %d", n)
		}
		return n, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("size out of range: %q", s)
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %q", matches[1])
	}

	multiplier, err := unitMultiplier(matches[2])
	if err != nil {
		return 0, err
	}

	bytes := value * float64(multiplier)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("size out of range: %q", s)
	}
	return int64(bytes), nil
}

func unitMultiplier(unit string) (int64, error) {
	switch strings.ToUpper(unit) {
	case "", "B":
		return B, nil
	case "KB", "K", "KI", "KIB":
		return KB, nil
	case "MB", "M", "MI", "MIB":
		return MB, nil
	case "GB", "G", "GI", "GIB":
		return GB, nil
	case "TB", "T", "TI", "TIB":
		return TB, nil
	case "PB", "P", "PI", "PIB":
		return PB, nil
	default:
		return 0, fmt.Errorf("unknown unit: %q", unit)
	}
}

// MustParse is like Parse but panics on error.
func MustParse(s string) int64 {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format formats a byte count into a human-readable string.
func Format(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	if bytes < 0 {
		// uint64 holds the magnitude of math.MinInt64.
		return "-" + formatMagnitude(uint64(-bytes))
	}
	return formatMagnitude(uint64(bytes))
}

func formatMagnitude(bytes uint64) string {
	units := []struct {
		threshold uint64
		unit      string
	}{
		{uint64(PB), "PB"},
		{uint64(TB), "TB"},
		{uint64(GB), "GB"},
		{uint64(MB), "MB"},
		{uint64(KB), "KB"},
	}

	for _, u := range units {
		if bytes >= u.threshold {
			return fmt.Sprintf("%.2f %s", float64(bytes)/float64(u.threshold), u.unit)
		}
	}

	return fmt.Sprintf("%d B", bytes)
}

// Size is a byte size that can be unmarshaled from YAML as either
// a number (bytes) or a string with units ("4MB", "500Mi", "1TB").
type Size int64

// UnmarshalYAML implements yaml.Unmarshaler for Size.
func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var i int64
	if err := unmarshal(&i); err == nil {
		if i < 0 {
			return fmt.Errorf("negative size not allowed: %d", i)
		}
		*s = Size(i)
		return nil
	}

	var str string
	if err := unmarshal(&str); err != nil {
		return fmt.Errorf("size must be a number or string with units (e.g., 4MB, 500Mi)")
	}
	bytes, err := Parse(str)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", str, err)
	}
	*s = Size(bytes)
	return nil
}

// MarshalYAML writes the size as a plain byte count.
func (s Size) MarshalYAML() (interface{}, error) {
	return int64(s), nil
}

// Bytes returns the size in bytes.
func (s Size) Bytes() int64 {
	return int64(s)
}

// String returns a human-readable representation.
func (s Size) String() string {
	return Format(int64(s))
}
