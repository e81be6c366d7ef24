// Package placement decides how suitable a resource is to service an
// operation on a data object, given the object's replicas and the resource's
// capacity policy.
package placement

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vaultnode/vaultnode/internal/capacity"
	"github.com/vaultnode/vaultnode/internal/hierarchy"
	"github.com/vaultnode/vaultnode/internal/logging/audit"
	"github.com/vaultnode/vaultnode/internal/metrics"
	"github.com/vaultnode/vaultnode/internal/resource"
)

var (
	// ErrUnsupportedOperation is returned for operations that are not voted on.
	ErrUnsupportedOperation = errors.New("operation is not supported for redirection")

	// ErrDuplicateReplicaOnResource is returned, when the check is enabled,
	// if an object has more than one replica on the voting resource.
	ErrDuplicateReplicaOnResource = errors.New("more than one replica on resource")
)

// CapacityChecker is the admission policy consulted for creates.
// *capacity.Guard implements it.
type CapacityChecker interface {
	ExceedsHighWaterMark(storageRoot string, hwm resource.HighWaterMark, candidateBytes int64) bool
	HasRoomFor(storageRoot string, candidateBytes int64) (bool, error)
}

// Selector computes votes. It holds no per-call state and may be used from
// many goroutines at once.
type Selector struct {
	capacity         CapacityChecker
	rejectDuplicates bool
	metrics          *metrics.VaultMetrics
	audit            *audit.Logger
	logger           zerolog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithDuplicateReplicaCheck makes Vote fail with ErrDuplicateReplicaOnResource
// when more than one replica lives on the voting resource. Off by default:
// the first matching replica wins.
func WithDuplicateReplicaCheck(enabled bool) Option {
	return func(s *Selector) {
		s.rejectDuplicates = enabled
	}
}

// WithMetrics records every decision in m.
func WithMetrics(m *metrics.VaultMetrics) Option {
	return func(s *Selector) {
		s.metrics = m
	}
}

// WithAudit records every decision in the audit trail.
func WithAudit(a *audit.Logger) Option {
	return func(s *Selector) {
		s.audit = a
	}
}

// NewSelector creates a selector that consults checker for creates. A nil
// checker uses statfs on the node's vault.
func NewSelector(checker CapacityChecker, logger zerolog.Logger, opts ...Option) *Selector {
	if checker == nil {
		checker = capacity.NewGuard(logger)
	}
	s := &Selector{
		capacity: checker,
		logger:   logger.With().Str("component", "placement").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Vote returns how suitable node is to service op on the object described by
// req, when the request arrived on currentHost. A down node always votes 0
// with ResourceUnavailable. On error the vote is 0 and the signal is
// meaningless.
func (s *Selector) Vote(op Operation, node resource.Node, currentHost string, req Request) (Vote, Signal, error) {
	vote, signal, err := s.vote(op, node, currentHost, req)
	s.observe(op, node, currentHost, vote, signal, err)
	return vote, signal, err
}

func (s *Selector) vote(op Operation, node resource.Node, currentHost string, req Request) (Vote, Signal, error) {
	if node.IsDown() {
		return VoteIneligible, ResourceUnavailable, nil
	}

	switch op {
	case OpCreate:
		return s.voteCreate(node, currentHost, req)
	case OpOpen, OpWrite, OpUnlink:
		// Unlink follows access: a resource that would not be chosen to
		// read a replica is not chosen to delete it either.
		return s.voteAccess(node, currentHost, req)
	default:
		return VoteIneligible, Ok, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
	}
}

func (s *Selector) voteCreate(node resource.Node, currentHost string, req Request) (Vote, Signal, error) {
	if s.capacity.ExceedsHighWaterMark(node.VaultPath, node.HighWaterMark, req.Size) {
		return VoteIneligible, CapacityExceeded, nil
	}
	ok, err := s.capacity.HasRoomFor(node.VaultPath, req.Size)
	if err != nil {
		return VoteIneligible, Ok, err
	}
	if !ok {
		return VoteIneligible, InsufficientSpace, nil
	}
	return locality(node, currentHost), Ok, nil
}

func (s *Selector) voteAccess(node resource.Node, currentHost string, req Request) (Vote, Signal, error) {
	match, err := s.findReplica(node.Name, req.Replicas)
	if err != nil {
		return VoteIneligible, Ok, err
	}
	if match == nil {
		return VoteIneligible, NoMatchingReplica, nil
	}

	if req.RequestedReplica >= 0 {
		// An explicit request overrides the dirty check. A mismatch is only
		// deprioritized since no other resource may hold the asked-for replica.
		if match.Number == req.RequestedReplica {
			return VoteLocal, Ok, nil
		}
		return VoteLastResort, Ok, nil
	}

	if match.Dirty {
		return VoteLastResort, Ok, nil
	}
	return locality(node, currentHost), Ok, nil
}

// findReplica returns the first replica, in the given order, whose leaf
// resource is name. With the duplicate check enabled every replica is
// examined.
func (s *Selector) findReplica(name string, replicas []Replica) (*Replica, error) {
	var match *Replica
	for i := range replicas {
		h, err := hierarchy.Parse(replicas[i].Hierarchy)
		if err != nil {
			return nil, fmt.Errorf("replica %d: %w", replicas[i].Number, err)
		}
		if h.Leaf() != name {
			continue
		}
		if match == nil {
			match = &replicas[i]
			if !s.rejectDuplicates {
				break
			}
			continue
		}
		return nil, fmt.Errorf("%w: %s holds replicas %d and %d",
			ErrDuplicateReplicaOnResource, name, match.Number, replicas[i].Number)
	}
	return match, nil
}

func locality(node resource.Node, currentHost string) Vote {
	if currentHost == node.Location {
		return VoteLocal
	}
	return VoteRemote
}

func (s *Selector) observe(op Operation, node resource.Node, currentHost string, vote Vote, signal Signal, err error) {
	signalName := signal.String()
	if err != nil {
		signalName = "error"
	}

	s.metrics.ObserveVote(string(op), signalName, float64(vote))

	event := s.logger.Debug().
		Str("resource", node.Name).
		Str("operation", string(op)).
		Str("host", currentHost).
		Float64("vote", float64(vote)).
		Str("signal", signalName)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("vote")

	if s.audit != nil {
		s.audit.LogVote(node.Name, string(op), currentHost, float64(vote), signalName)
	}
}
