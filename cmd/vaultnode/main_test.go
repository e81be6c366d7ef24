package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultnode/vaultnode/internal/placement"
)

// writeConfig writes a two-resource config and returns its path and the
// vault roots.
func writeConfig(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	shareVault := filepath.Join(dir, "share")
	archiveVault := filepath.Join(dir, "archive")
	require.NoError(t, os.MkdirAll(shareVault, 0755))
	require.NoError(t, os.MkdirAll(archiveVault, 0755))

	cfg := fmt.Sprintf(`host: nodeA
resources:
  - name: shareResc
    location: nodeA
    vault_path: %s
  - name: archiveResc
    location: nodeB
    vault_path: %s
    context: "default_vault_directory_mode_kw=0750"
  - name: offlineResc
    status: down
    vault_path: %s
`, shareVault, archiveVault, archiveVault)

	path := filepath.Join(dir, "vaultnode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path, shareVault, archiveVault
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// row returns the output line starting with name.
func row(t *testing.T, out, name string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, name+" ") {
			return line
		}
	}
	t.Fatalf("no row for %s in:\n%s", name, out)
	return ""
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "vaultnode dev")
	assert.Contains(t, out, "Commit:")
	assert.Contains(t, out, "Build Time:")
}

func TestLoadRequest(t *testing.T) {
	dir := t.TempDir()

	t.Run("full document", func(t *testing.T) {
		path := filepath.Join(dir, "full.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`requested_replica: 2
size: 1024
replicas:
  - number: 2
    hierarchy: root/pt/shareResc
    dirty: true
    size: 1024
`), 0644))

		req, err := loadRequest(path)
		require.NoError(t, err)
		assert.Equal(t, 2, req.RequestedReplica)
		assert.Equal(t, int64(1024), req.Size)
		require.Len(t, req.Replicas, 1)
		assert.Equal(t, placement.Replica{Number: 2, Hierarchy: "root/pt/shareResc", Dirty: true, Size: 1024}, req.Replicas[0])
	})

	t.Run("omitted fields keep unset defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		require.NoError(t, os.WriteFile(path, []byte("replicas: []\n"), 0644))

		req, err := loadRequest(path)
		require.NoError(t, err)
		assert.Equal(t, placement.ReplicaUnspecified, req.RequestedReplica)
		assert.Equal(t, int64(-1), req.Size)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadRequest(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("replicas: {number: [\n"), 0644))
		_, err := loadRequest(path)
		assert.Error(t, err)
	})
}

func TestPrintVotes(t *testing.T) {
	var out bytes.Buffer
	printVotes(&out, []voteResult{
		{Resource: "a", Vote: placement.VoteLocal, Signal: placement.Ok},
		{Resource: "b", Vote: placement.VoteIneligible, Signal: placement.ResourceUnavailable},
		{Resource: "c", Err: errors.New("boom")},
	})

	text := out.String()
	assert.Contains(t, text, "RESOURCE")
	assert.Regexp(t, `a\s+1\.00\s+ok\s+-`, text)
	assert.Regexp(t, `b\s+0\.00\s+resource_unavailable\s+-`, text)
	assert.Regexp(t, `c\s+0\.00\s+-\s+boom`, text)
}

func TestVoteCmd(t *testing.T) {
	cfgPath, _, _ := writeConfig(t)

	replicas := filepath.Join(filepath.Dir(cfgPath), "object.yaml")
	require.NoError(t, os.WriteFile(replicas, []byte(`replicas:
  - number: 0
    hierarchy: root/pt/archiveResc
    dirty: false
  - number: 1
    hierarchy: root/shareResc
    dirty: true
`), 0644))

	t.Run("single resource", func(t *testing.T) {
		out, err := execute(t, "-c", cfgPath, "vote", "archiveResc", "--op", "open", "--replicas", replicas)
		require.NoError(t, err)
		assert.Regexp(t, `archiveResc\s+0\.50\s+ok`, out)
	})

	t.Run("all resources", func(t *testing.T) {
		out, err := execute(t, "-c", cfgPath, "vote", "--all", "--op", "open", "--replicas", replicas)
		require.NoError(t, err)
		assert.Regexp(t, `0\.25\s+ok`, row(t, out, "shareResc"))
		assert.Regexp(t, `0\.50\s+ok`, row(t, out, "archiveResc"))
		assert.Regexp(t, `0\.00\s+resource_unavailable`, row(t, out, "offlineResc"))
	})

	t.Run("requested replica flag overrides file", func(t *testing.T) {
		out, err := execute(t, "-c", cfgPath, "vote", "shareResc", "--op", "open", "--replicas", replicas, "--requested", "1")
		require.NoError(t, err)
		assert.Regexp(t, `shareResc\s+1\.00\s+ok`, out)
	})

	t.Run("host flag", func(t *testing.T) {
		out, err := execute(t, "-c", cfgPath, "vote", "archiveResc", "--op", "open", "--replicas", replicas, "--host", "nodeB")
		require.NoError(t, err)
		assert.Regexp(t, `archiveResc\s+1\.00\s+ok`, out)
	})

	t.Run("create without size", func(t *testing.T) {
		out, err := execute(t, "-c", cfgPath, "vote", "shareResc", "--op", "create")
		require.NoError(t, err)
		assert.Regexp(t, `shareResc\s+1\.00\s+ok`, out)
	})

	t.Run("create with unit size", func(t *testing.T) {
		out, err := execute(t, "-c", cfgPath, "vote", "shareResc", "--op", "create", "--size", "1KB")
		require.NoError(t, err)
		assert.Regexp(t, `shareResc\s+1\.00\s+ok`, out)
	})

	t.Run("create with malformed size", func(t *testing.T) {
		_, err := execute(t, "-c", cfgPath, "vote", "shareResc", "--op", "create", "--size", "lots")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--size")
	})

	t.Run("no matching replica", func(t *testing.T) {
		out, err := execute(t, "-c", cfgPath, "vote", "shareResc", "--op", "write")
		require.NoError(t, err)
		assert.Regexp(t, `shareResc\s+0\.00\s+no_matching_replica`, out)
	})

	t.Run("unsupported operation", func(t *testing.T) {
		_, err := execute(t, "-c", cfgPath, "vote", "shareResc", "--op", "rename")
		require.Error(t, err)
		assert.ErrorIs(t, err, placement.ErrUnsupportedOperation)
	})

	t.Run("unknown operation", func(t *testing.T) {
		_, err := execute(t, "-c", cfgPath, "vote", "shareResc", "--op", "frobnicate")
		assert.Error(t, err)
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, err := execute(t, "-c", cfgPath, "vote", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown resource")
	})

	t.Run("resource argument required", func(t *testing.T) {
		_, err := execute(t, "-c", cfgPath, "vote")
		assert.Error(t, err)
	})
}

func TestMkdirCmd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory modes are not enforced on windows")
	}
	cfgPath, shareVault, archiveVault := writeConfig(t)

	t.Run("default mode", func(t *testing.T) {
		out, err := execute(t, "-c", cfgPath, "mkdir", "shareResc", "home/alice/projects")
		require.NoError(t, err)

		target := filepath.Join(shareVault, "home", "alice", "projects")
		assert.Contains(t, out, target)
		info, err := os.Stat(target)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
	})

	t.Run("context mode", func(t *testing.T) {
		_, err := execute(t, "-c", cfgPath, "mkdir", "archiveResc", "home/bob")
		require.NoError(t, err)

		info, err := os.Stat(filepath.Join(archiveVault, "home", "bob"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
	})

	t.Run("explicit mode", func(t *testing.T) {
		_, err := execute(t, "-c", cfgPath, "mkdir", "shareResc", "private/keys", "--mode", "0700")
		require.NoError(t, err)

		for _, p := range []string{"private", "private/keys"} {
			info, err := os.Stat(filepath.Join(shareVault, p))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0700), info.Mode().Perm(), p)
		}
	})

	t.Run("invalid mode", func(t *testing.T) {
		_, err := execute(t, "-c", cfgPath, "mkdir", "shareResc", "x", "--mode", "rwx")
		assert.Error(t, err)
	})
}

func TestStageAndSyncCmd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	cfgPath, _, archiveVault := writeConfig(t)

	content := []byte("archived object payload")
	require.NoError(t, os.WriteFile(filepath.Join(archiveVault, "data.bin"), content, 0644))

	cachePath := filepath.Join(t.TempDir(), "data.bin")

	out, err := execute(t, "-c", cfgPath, "stage", "archiveResc", "data.bin", cachePath, "--mode", "0600")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("(%d bytes)", len(content)))

	got, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	info, err := os.Stat(cachePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	updated := []byte("updated in cache")
	require.NoError(t, os.WriteFile(cachePath, updated, 0600))

	_, err = execute(t, "-c", cfgPath, "sync", "archiveResc", "data.bin", cachePath)
	require.NoError(t, err)
	got, err = os.ReadFile(filepath.Join(archiveVault, "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = execute(t, "-c", cfgPath, "stage", "archiveResc", "missing.bin", cachePath)
	assert.Error(t, err)
}

func TestFreeSpaceCmd(t *testing.T) {
	cfgPath, _, _ := writeConfig(t)

	out, err := execute(t, "-c", cfgPath, "freespace", "shareResc")
	require.NoError(t, err)
	line := row(t, out, "shareResc")
	assert.Contains(t, line, "disabled")
	assert.Contains(t, line, "yes")
}

func TestResourcesCmd(t *testing.T) {
	cfgPath, shareVault, _ := writeConfig(t)

	out, err := execute(t, "-c", cfgPath, "resources")
	require.NoError(t, err)

	share := row(t, out, "shareResc")
	assert.Contains(t, share, shareVault)
	assert.Contains(t, share, "up")
	assert.Contains(t, share, "0755")
	assert.Contains(t, share, "0644")

	assert.Contains(t, row(t, out, "archiveResc"), "0750")
	assert.Contains(t, row(t, out, "offlineResc"), "down")
}

func TestResourcesWatchRejectsInterval(t *testing.T) {
	cfgPath, _, _ := writeConfig(t)

	for _, interval := range []string{"0s", "-5s"} {
		t.Run(interval, func(t *testing.T) {
			_, err := execute(t, "-c", cfgPath, "resources", "--watch", "--interval", interval)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "--interval")
		})
	}
}

func TestMetricsFile(t *testing.T) {
	cfgPath, _, _ := writeConfig(t)
	metricsPath := filepath.Join(t.TempDir(), "vaultnode.prom")

	_, err := execute(t, "-c", cfgPath, "--metrics-file", metricsPath, "vote", "shareResc", "--op", "create")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vaultnode_votes_total")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "resources")
	assert.Error(t, err)
}
