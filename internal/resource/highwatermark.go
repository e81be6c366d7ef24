package resource

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vaultnode/vaultnode/pkg/bytesize"
)

// HighWaterMarkKey is the resource context key holding the threshold.
const HighWaterMarkKey = "high_water_mark"

// HighWaterMark is a capacity admission policy: either enforced at a byte
// threshold or disabled. The zero value is disabled.
type HighWaterMark struct {
	enforced  bool
	threshold int64
}

// Enforced returns a policy that rejects writes once projected usage would
// exceed threshold bytes.
func Enforced(threshold int64) HighWaterMark {
	return HighWaterMark{enforced: true, threshold: threshold}
}

// Disabled returns a policy that never rejects.
func Disabled() HighWaterMark {
	return HighWaterMark{}
}

// ParseHighWaterMark turns a configured threshold into a policy. An empty
// value disables enforcement. An unparsable value also disables enforcement
// and is logged: a malformed policy must never block writes.
func ParseHighWaterMark(raw string, logger zerolog.Logger) HighWaterMark {
	if raw == "" {
		return Disabled()
	}
	n, err := bytesize.Parse(raw)
	if err != nil {
		logger.Error().Err(err).Str("high_water_mark", raw).Msg("malformed high water mark, enforcement disabled")
		return Disabled()
	}
	return Enforced(n)
}

// IsEnforced reports whether the policy has a threshold.
func (h HighWaterMark) IsEnforced() bool {
	return h.enforced
}

// Threshold returns the threshold and whether it is enforced.
func (h HighWaterMark) Threshold() (int64, bool) {
	return h.threshold, h.enforced
}

// Exceeded reports whether used+candidate would cross the threshold.
// A disabled policy is never exceeded.
func (h HighWaterMark) Exceeded(used, candidate int64) bool {
	if !h.enforced {
		return false
	}
	return used+candidate > h.threshold
}

// String renders the policy for logs and CLI output.
func (h HighWaterMark) String() string {
	if !h.enforced {
		return "disabled"
	}
	return fmt.Sprintf("%d (%s)", h.threshold, bytesize.Format(h.threshold))
}
