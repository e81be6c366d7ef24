package placement

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultnode/vaultnode/internal/capacity"
	"github.com/vaultnode/vaultnode/internal/hierarchy"
	"github.com/vaultnode/vaultnode/internal/logging/audit"
	"github.com/vaultnode/vaultnode/internal/metrics"
	"github.com/vaultnode/vaultnode/internal/resource"
)

// fakeCapacity answers from fixed usage figures.
type fakeCapacity struct {
	total, free int64
	err         error
	calls       int
}

func (f *fakeCapacity) ExceedsHighWaterMark(_ string, hwm resource.HighWaterMark, candidate int64) bool {
	f.calls++
	return hwm.Exceeded(f.total-f.free, candidate)
}

func (f *fakeCapacity) HasRoomFor(_ string, candidate int64) (bool, error) {
	f.calls++
	if candidate < 0 {
		return true, nil
	}
	if f.err != nil {
		return false, f.err
	}
	return f.free >= candidate, nil
}

func node(name, location string) resource.Node {
	return resource.Node{Name: name, Location: location, VaultPath: "/vault/" + name}
}

var sampleReplicas = []Replica{
	{Number: 0, Hierarchy: "A/B", Dirty: false},
	{Number: 1, Hierarchy: "A/C", Dirty: true},
}

func TestVoteDownResource(t *testing.T) {
	checker := &fakeCapacity{total: 1000, free: 1000}
	s := NewSelector(checker, zerolog.Nop())

	down := node("B", "hostB")
	down.Status = resource.StatusDown

	for _, op := range operations {
		for _, req := range []Request{
			{RequestedReplica: ReplicaUnspecified, Replicas: sampleReplicas},
			{RequestedReplica: 0, Replicas: sampleReplicas},
			{RequestedReplica: ReplicaUnspecified},
			{RequestedReplica: ReplicaUnspecified, Replicas: []Replica{{Hierarchy: "bad//path"}}},
		} {
			vote, signal, err := s.Vote(op, down, "hostB", req)
			require.NoError(t, err, "op %s", op)
			assert.Equal(t, VoteIneligible, vote, "op %s", op)
			assert.Equal(t, ResourceUnavailable, signal, "op %s", op)
		}
	}
	assert.Equal(t, 0, checker.calls, "a down resource must not query capacity")
}

func TestVoteReplicaMatching(t *testing.T) {
	s := NewSelector(&fakeCapacity{}, zerolog.Nop())

	tests := []struct {
		name       string
		op         Operation
		node       resource.Node
		host       string
		requested  int
		wantVote   Vote
		wantSignal Signal
	}{
		{"dirty match", OpOpen, node("C", "hostC"), "hostC", ReplicaUnspecified, 0.25, Ok},
		{"clean local match", OpOpen, node("B", "hostB"), "hostB", ReplicaUnspecified, 1.0, Ok},
		{"clean remote match", OpOpen, node("B", "hostB"), "elsewhere", ReplicaUnspecified, 0.5, Ok},
		{"no match", OpOpen, node("D", "hostD"), "hostD", ReplicaUnspecified, 0.0, NoMatchingReplica},
		{"requested overrides dirty", OpOpen, node("C", "hostC"), "elsewhere", 1, 1.0, Ok},
		{"requested other replica", OpOpen, node("B", "hostB"), "hostB", 1, 0.25, Ok},
		{"requested, no match", OpOpen, node("D", "hostD"), "hostD", 1, 0.0, NoMatchingReplica},
		{"negative requested is no preference", OpOpen, node("B", "hostB"), "hostB", -2, 1.0, Ok},
		{"negative requested keeps dirty check", OpOpen, node("C", "hostC"), "hostC", -7, 0.25, Ok},
		{"write follows open", OpWrite, node("B", "hostB"), "hostB", ReplicaUnspecified, 1.0, Ok},
		{"unlink follows open", OpUnlink, node("C", "hostC"), "hostC", ReplicaUnspecified, 0.25, Ok},
		{"unlink remote", OpUnlink, node("B", "hostB"), "elsewhere", ReplicaUnspecified, 0.5, Ok},
		{"root is not the leaf", OpOpen, node("A", "hostA"), "hostA", ReplicaUnspecified, 0.0, NoMatchingReplica},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{RequestedReplica: tt.requested, Replicas: sampleReplicas}
			vote, signal, err := s.Vote(tt.op, tt.node, tt.host, req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVote, vote)
			assert.Equal(t, tt.wantSignal, signal)
		})
	}
}

func TestVoteFirstMatchWins(t *testing.T) {
	s := NewSelector(&fakeCapacity{}, zerolog.Nop())

	replicas := []Replica{
		{Number: 3, Hierarchy: "root/leaf", Dirty: true},
		{Number: 4, Hierarchy: "other/leaf", Dirty: false},
	}
	vote, signal, err := s.Vote(OpOpen, node("leaf", "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Replicas: replicas})
	require.NoError(t, err)
	assert.Equal(t, VoteLastResort, vote, "the first replica (dirty) decides")
	assert.Equal(t, Ok, signal)

	// Reversing the order changes the outcome.
	reversed := []Replica{replicas[1], replicas[0]}
	vote, _, err = s.Vote(OpOpen, node("leaf", "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Replicas: reversed})
	require.NoError(t, err)
	assert.Equal(t, VoteLocal, vote)
}

func TestVoteDuplicateReplicaCheck(t *testing.T) {
	s := NewSelector(&fakeCapacity{}, zerolog.Nop(), WithDuplicateReplicaCheck(true))

	replicas := []Replica{
		{Number: 0, Hierarchy: "root/leaf"},
		{Number: 1, Hierarchy: "root/other"},
		{Number: 2, Hierarchy: "pt/leaf"},
	}
	_, _, err := s.Vote(OpOpen, node("leaf", "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Replicas: replicas})
	assert.ErrorIs(t, err, ErrDuplicateReplicaOnResource)

	// A single match passes.
	vote, signal, err := s.Vote(OpOpen, node("other", "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Replicas: replicas})
	require.NoError(t, err)
	assert.Equal(t, VoteLocal, vote)
	assert.Equal(t, Ok, signal)
}

func TestVoteInvalidHierarchy(t *testing.T) {
	s := NewSelector(&fakeCapacity{}, zerolog.Nop())

	for _, h := range []string{"", "A//B", "/A", "A/", "B"} {
		req := Request{RequestedReplica: ReplicaUnspecified, Replicas: []Replica{{Hierarchy: h}}}
		vote, _, err := s.Vote(OpOpen, node("B", "h"), "h", req)
		assert.ErrorIs(t, err, hierarchy.ErrInvalidHierarchyPath, "hierarchy %q", h)
		assert.Equal(t, VoteIneligible, vote)
	}
}

func TestVoteCreate(t *testing.T) {
	tests := []struct {
		name       string
		hwm        resource.HighWaterMark
		size       int64
		host       string
		wantVote   Vote
		wantSignal Signal
	}{
		{"local, no policy", resource.Disabled(), 10, "hostB", 1.0, Ok},
		{"remote, no policy", resource.Disabled(), 10, "other", 0.5, Ok},
		{"at the mark", resource.Enforced(950), 50, "hostB", 1.0, Ok},
		{"over the mark", resource.Enforced(950), 51, "hostB", 0.0, CapacityExceeded},
		{"no room", resource.Disabled(), 101, "hostB", 0.0, InsufficientSpace},
		{"mark checked before room", resource.Enforced(950), 500, "hostB", 0.0, CapacityExceeded},
		{"unknown size", resource.Enforced(950), -1, "other", 0.5, Ok},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(&fakeCapacity{total: 1000, free: 100}, zerolog.Nop())
			n := node("B", "hostB")
			n.HighWaterMark = tt.hwm

			vote, signal, err := s.Vote(OpCreate, n, tt.host, Request{RequestedReplica: ReplicaUnspecified, Size: tt.size})
			require.NoError(t, err)
			assert.Equal(t, tt.wantVote, vote)
			assert.Equal(t, tt.wantSignal, signal)
		})
	}
}

func TestVoteCreateIgnoresReplicas(t *testing.T) {
	s := NewSelector(&fakeCapacity{total: 1000, free: 1000}, zerolog.Nop())

	vote, signal, err := s.Vote(OpCreate, node("D", "hostD"), "hostD", Request{
		RequestedReplica: ReplicaUnspecified,
		Replicas:         sampleReplicas,
	})
	require.NoError(t, err)
	assert.Equal(t, VoteLocal, vote)
	assert.Equal(t, Ok, signal)
}

func TestVoteCreateUsageError(t *testing.T) {
	s := NewSelector(&fakeCapacity{err: capacity.ErrFilesystemQuery}, zerolog.Nop())

	vote, _, err := s.Vote(OpCreate, node("B", "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Size: 10})
	assert.ErrorIs(t, err, capacity.ErrFilesystemQuery)
	assert.Equal(t, VoteIneligible, vote)
}

func TestVoteWithRealGuard(t *testing.T) {
	guard := capacity.NewGuard(zerolog.Nop(), capacity.WithStatFunc(func(string) (capacity.Usage, error) {
		return capacity.Usage{Total: 1000, Free: 100}, nil
	}))
	s := NewSelector(guard, zerolog.Nop())

	n := node("B", "hostB")
	n.HighWaterMark = resource.Enforced(950)

	vote, signal, err := s.Vote(OpCreate, n, "hostB", Request{RequestedReplica: ReplicaUnspecified, Size: 51})
	require.NoError(t, err)
	assert.Equal(t, VoteIneligible, vote)
	assert.Equal(t, CapacityExceeded, signal)
}

func TestVoteUnsupportedOperation(t *testing.T) {
	s := NewSelector(&fakeCapacity{}, zerolog.Nop())

	for _, op := range []Operation{OpRename, OpTruncate, OpStageToCache, OpSyncToArchive, Operation("bogus")} {
		vote, _, err := s.Vote(op, node("B", "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Replicas: sampleReplicas})
		assert.ErrorIs(t, err, ErrUnsupportedOperation, "op %s", op)
		assert.Equal(t, VoteIneligible, vote)
	}
}

func TestVoteAlwaysInRange(t *testing.T) {
	s := NewSelector(&fakeCapacity{total: 1000, free: 500}, zerolog.Nop())

	hosts := []string{"hostA", "hostB", "hostC", "x"}
	requested := []int{ReplicaUnspecified, 0, 1, 7}
	for _, op := range operations {
		for _, name := range []string{"A", "B", "C", "D"} {
			for _, host := range hosts {
				for _, r := range requested {
					vote, _, _ := s.Vote(op, node(name, "host"+name), host,
						Request{RequestedReplica: r, Size: 10, Replicas: sampleReplicas})
					assert.GreaterOrEqual(t, float64(vote), 0.0)
					assert.LessOrEqual(t, float64(vote), 1.0)
				}
			}
		}
	}
}

func TestVoteConcurrent(t *testing.T) {
	guard := capacity.NewGuard(zerolog.Nop(), capacity.WithStatFunc(func(string) (capacity.Usage, error) {
		return capacity.Usage{Total: 1000, Free: 500}, nil
	}))
	s := NewSelector(guard, zerolog.Nop(), WithMetrics(metrics.New(prometheus.NewRegistry())))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := []string{"B", "C", "D"}[i%3]
			_, _, err := s.Vote(OpOpen, node(name, "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Replicas: sampleReplicas})
			assert.NoError(t, err)
			_, _, err = s.Vote(OpCreate, node(name, "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Size: 10})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestVoteObservability(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var auditBuf, logBuf bytes.Buffer

	s := NewSelector(&fakeCapacity{}, zerolog.New(&logBuf).Level(zerolog.DebugLevel),
		WithMetrics(m), WithAudit(audit.NewLogger(zerolog.New(&auditBuf))))

	_, _, err := s.Vote(OpOpen, node("D", "h"), "h", Request{RequestedReplica: ReplicaUnspecified, Replicas: sampleReplicas})
	require.NoError(t, err)
	_, _, err = s.Vote(OpRename, node("D", "h"), "h", Request{RequestedReplica: ReplicaUnspecified})
	require.Error(t, err)

	assert.Equal(t, float64(1), promtest.ToFloat64(m.Votes.WithLabelValues("open", "no_matching_replica")))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.Votes.WithLabelValues("rename", "error")))

	lines := strings.Split(strings.TrimSpace(auditBuf.String()), "\n")
	require.Len(t, lines, 2)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "vote", entry["event_type"])
	assert.Equal(t, "no_matching_replica", entry["signal"])
	assert.NotEmpty(t, entry["decision_id"])

	assert.Contains(t, logBuf.String(), `"component":"placement"`)
}

func TestParseOperation(t *testing.T) {
	for _, op := range operations {
		got, err := ParseOperation(strings.ToUpper(string(op)))
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
	_, err := ParseOperation("delete")
	assert.Error(t, err)
}

func TestSignalString(t *testing.T) {
	assert.Equal(t, "ok", Ok.String())
	assert.Equal(t, "resource_unavailable", ResourceUnavailable.String())
	assert.Equal(t, "capacity_exceeded", CapacityExceeded.String())
	assert.Equal(t, "insufficient_space", InsufficientSpace.String())
	assert.Equal(t, "no_matching_replica", NoMatchingReplica.String())
	assert.Equal(t, "signal(42)", Signal(42).String())
}

func TestCheckerImplementations(t *testing.T) {
	var _ CapacityChecker = &fakeCapacity{}
	var _ CapacityChecker = capacity.NewGuard(zerolog.Nop())
}
