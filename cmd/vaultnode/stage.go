package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultnode/vaultnode/internal/config"
	"github.com/vaultnode/vaultnode/internal/vault"
	"github.com/vaultnode/vaultnode/pkg/bytesize"
)

func newStageCmd() *cobra.Command {
	return newTierCopyCmd(
		"stage",
		"Copy an archived object into the cache tier",
		`Copy an object out of the resource's vault to a cache path. The cache
file is created or truncated and given the object's mode.

Examples:
  vaultnode stage archiveResc home/alice/data.bin /cache/home/alice/data.bin`,
		func(v *vault.Vault, rc vault.RequestContext, cachePath string) (int64, error) {
			return v.StageToCache(rc, cachePath)
		},
	)
}

func newSyncCmd() *cobra.Command {
	return newTierCopyCmd(
		"sync",
		"Copy a cached object back into the archive tier",
		`Copy a cache file over the object in the resource's vault. The archived
object is created or truncated and given the object's mode.

Examples:
  vaultnode sync archiveResc home/alice/data.bin /cache/home/alice/data.bin`,
		func(v *vault.Vault, rc vault.RequestContext, cachePath string) (int64, error) {
			return v.SyncToArchive(rc, cachePath)
		},
	)
}

type tierCopyFunc func(v *vault.Vault, rc vault.RequestContext, cachePath string) (int64, error)

func newTierCopyCmd(use, short, long string, run tierCopyFunc) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   use + " <resource> <object-path> <cache-path>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			v, err := e.vault(args[0])
			if err != nil {
				return err
			}

			obj := vault.FileObject{PhysicalPath: args[1]}
			if mode != "" {
				perm, err := config.ParseMode(mode)
				if err != nil {
					return err
				}
				obj.Mode = perm
			}

			n, err := run(v, vault.ForFile(obj), args[2])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: copied %s (%d bytes)\n", use, bytesize.Format(n), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "octal mode of the destination (default: resource file mode)")
	return cmd
}
