package placement

import (
	"fmt"
	"strings"
)

// Operation is the I/O operation a vote is requested for.
type Operation string

const (
	OpCreate        Operation = "create"
	OpOpen          Operation = "open"
	OpWrite         Operation = "write"
	OpUnlink        Operation = "unlink"
	OpRename        Operation = "rename"
	OpTruncate      Operation = "truncate"
	OpStageToCache  Operation = "stage"
	OpSyncToArchive Operation = "sync"
)

var operations = []Operation{
	OpCreate, OpOpen, OpWrite, OpUnlink,
	OpRename, OpTruncate, OpStageToCache, OpSyncToArchive,
}

// ParseOperation parses an operation name (case-insensitive).
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range operations {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Signal explains a vote to the aggregator.
type Signal int

const (
	Ok Signal = iota
	ResourceUnavailable
	CapacityExceeded
	InsufficientSpace
	NoMatchingReplica
)

func (s Signal) String() string {
	switch s {
	case Ok:
		return "ok"
	case ResourceUnavailable:
		return "resource_unavailable"
	case CapacityExceeded:
		return "capacity_exceeded"
	case InsufficientSpace:
		return "insufficient_space"
	case NoMatchingReplica:
		return "no_matching_replica"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Vote is a resource's suitability for an operation, in [0,1]. Higher is
// preferred; 0 means ineligible.
type Vote float64

// Vote values.
const (
	VoteIneligible Vote = 0.0
	VoteLastResort Vote = 0.25 // dirty replica, or not the replica that was asked for
	VoteRemote     Vote = 0.5
	VoteLocal      Vote = 1.0
)

// ReplicaUnspecified means the caller has no replica preference. Any
// negative RequestedReplica is treated the same way.
const ReplicaUnspecified = -1

// Replica is one physical copy of a data object.
type Replica struct {
	Number    int    `yaml:"number" json:"number"`
	Hierarchy string `yaml:"hierarchy" json:"hierarchy"` // root-to-leaf resource names, e.g. "root/pt/leaf"
	Dirty     bool   `yaml:"dirty" json:"dirty"`
	Size      int64  `yaml:"size" json:"size"`
}

// Request is the object context of a vote. Replicas must not be mutated
// while a vote is in progress.
type Request struct {
	RequestedReplica int       `yaml:"requested_replica" json:"requested_replica"`
	Size             int64     `yaml:"size" json:"size"` // candidate bytes for create; negative if unknown
	Replicas         []Replica `yaml:"replicas" json:"replicas"`
}
