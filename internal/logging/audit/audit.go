package audit

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger records placement decisions and vault operations as structured events.
// All audit events carry an event_type field for easy filtering.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger from a zerolog.Logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// LogVote logs a placement vote and returns its decision id.
// resource: the resource that voted
// operation: requested operation (e.g., "create", "open")
// host: the host the request arrived on
// vote: the score in [0,1]
// signal: the decision signal (e.g., "ok", "no_matching_replica")
func (l *Logger) LogVote(resource, operation, host string, vote float64, signal string) string {
	id := uuid.NewString()

	level := zerolog.InfoLevel
	if vote == 0 {
		level = zerolog.WarnLevel
	}

	l.logger.WithLevel(level).
		Str("event_type", "vote").
		Str("decision_id", id).
		Str("resource", resource).
		Str("operation", operation).
		Str("host", host).
		Float64("vote", vote).
		Str("signal", signal).
		Msg("Placement vote")

	return id
}

// LogAdmission logs a capacity rejection of a new write.
// resource: the resource that refused
// reason: "capacity_exceeded" or "insufficient_space"
// candidate: the size of the write in bytes (negative if unknown)
// details: additional context (e.g., usage figures)
func (l *Logger) LogAdmission(resource, reason string, candidate int64, details string) {
	event := l.logger.Warn().
		Str("event_type", "admission").
		Str("resource", resource).
		Str("reason", reason).
		Int64("candidate_bytes", candidate)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Admission rejected")
}

// LogVaultOp logs a physical operation on a vault.
// resource: the resource owning the vault
// operation: vault operation (e.g., "create", "rename", "stage")
// path: the physical path acted on
// result: "ok" or "failed"
// details: additional context (e.g., error message)
func (l *Logger) LogVaultOp(resource, operation, path, result, details string) {
	level := zerolog.InfoLevel
	if result != "ok" {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "vault_operation").
		Str("resource", resource).
		Str("operation", operation).
		Str("path", path).
		Str("result", result)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Vault operation")
}
