package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vaultnode/vaultnode/internal/placement"
	"github.com/vaultnode/vaultnode/internal/resource"
	"github.com/vaultnode/vaultnode/pkg/bytesize"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var (
	voteOp        string
	voteHost      string
	voteReplicas  string
	voteRequested int
	voteSize      string
	voteAll       bool
)

func newVoteCmd() *cobra.Command {
	voteCmd := &cobra.Command{
		Use:   "vote [resource]",
		Short: "Compute a resource's vote for an operation",
		Long: `Compute how suitable a resource is to service an operation on a data object.

The replica file is YAML:

  requested_replica: -1     # negative = no preference
  size: 1048576             # candidate bytes for create, -1 = unknown
  replicas:
    - number: 0
      hierarchy: root/passthru/shareResc
      dirty: false
      size: 1048576

Examples:
  # Vote on one resource
  vaultnode vote shareResc --op open --replicas object.yaml

  # Vote on every configured resource
  vaultnode vote --all --op create --size 1GB`,
		Args: func(cmd *cobra.Command, args []string) error {
			if voteAll {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: runVote,
	}
	voteCmd.Flags().StringVar(&voteOp, "op", "open", "operation: create, open, write, unlink")
	voteCmd.Flags().StringVar(&voteHost, "host", "", "host the request arrived on (default: config host)")
	voteCmd.Flags().StringVar(&voteReplicas, "replicas", "", "YAML file describing the object's replicas")
	voteCmd.Flags().IntVar(&voteRequested, "requested", placement.ReplicaUnspecified, "requested replica number")
	voteCmd.Flags().StringVar(&voteSize, "size", "", "candidate size for create, e.g. 1048576 or 1GB (default: unknown)")
	voteCmd.Flags().BoolVar(&voteAll, "all", false, "vote on every configured resource")
	return voteCmd
}

// voteResult is one row of vote output.
type voteResult struct {
	Resource string
	Vote     placement.Vote
	Signal   placement.Signal
	Err      error
}

func runVote(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	op, err := placement.ParseOperation(voteOp)
	if err != nil {
		return err
	}

	req := placement.Request{RequestedReplica: placement.ReplicaUnspecified, Size: -1}
	if voteReplicas != "" {
		req, err = loadRequest(voteReplicas)
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("requested") {
		req.RequestedReplica = voteRequested
	}
	if voteSize != "" {
		size, err := bytesize.Parse(voteSize)
		if err != nil {
			return fmt.Errorf("invalid argument %q for \"--size\" flag: %w", voteSize, err)
		}
		req.Size = size
	}

	host := voteHost
	if host == "" {
		host = e.cfg.Host
	}

	selector := placement.NewSelector(e.guard, e.logger,
		placement.WithDuplicateReplicaCheck(e.cfg.RejectDuplicateReplicas),
		placement.WithMetrics(e.metrics),
		placement.WithAudit(e.audit),
	)

	var nodes []resource.Node
	if voteAll {
		nodes, err = e.cfg.Nodes(e.logger)
	} else {
		var n resource.Node
		n, err = e.node(args[0])
		nodes = []resource.Node{n}
	}
	if err != nil {
		return err
	}

	results := voteAllNodes(selector, op, nodes, host, req)
	printVotes(cmd.OutOrStdout(), results)

	if !voteAll && results[0].Err != nil {
		return results[0].Err
	}
	return nil
}

// voteAllNodes votes on every node concurrently. A failed vote is reported
// in its row and does not stop the others.
func voteAllNodes(s *placement.Selector, op placement.Operation, nodes []resource.Node, host string, req placement.Request) []voteResult {
	results := make([]voteResult, len(nodes))

	var g errgroup.Group
	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			vote, signal, err := s.Vote(op, n, host, req)
			results[i] = voteResult{Resource: n.Name, Vote: vote, Signal: signal, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func loadRequest(path string) (placement.Request, error) {
	req := placement.Request{RequestedReplica: placement.ReplicaUnspecified, Size: -1}

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read replica file: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse replica file: %w", err)
	}
	return req, nil
}

func printVotes(out io.Writer, results []voteResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RESOURCE\tVOTE\tSIGNAL\tERROR")
	for _, r := range results {
		signal, errText := r.Signal.String(), "-"
		if r.Err != nil {
			signal, errText = "-", r.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n", r.Resource, float64(r.Vote), signal, errText)
	}
	_ = w.Flush()
}
