package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultnode/vaultnode/internal/config"
	"github.com/vaultnode/vaultnode/internal/vault"
)

func newMkdirCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "mkdir <resource> <path>",
		Short: "Provision a collection and its missing parents in a vault",
		Long: `Create a directory path inside a resource's vault. Every directory the
command creates gets exactly the requested mode regardless of umask.
Directories that already exist are left alone.

Examples:
  vaultnode mkdir shareResc home/alice/projects
  vaultnode mkdir shareResc home/alice/private --mode 0700`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			v, err := e.vault(args[0])
			if err != nil {
				return err
			}

			rc := vault.ForCollection(vault.CollectionObject{PhysicalPath: args[1]})
			if mode == "" {
				err = v.MkdirAll(rc)
			} else {
				perm, perr := config.ParseMode(mode)
				if perr != nil {
					return perr
				}
				path, rerr := vault.Resolve(v.Root(), args[1])
				if rerr != nil {
					return rerr
				}
				err = vault.MakeDirs(path, perm)
			}
			if err != nil {
				return err
			}

			path, _ := vault.Resolve(v.Root(), args[1])
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "octal directory mode (default: resource dir mode)")
	return cmd
}
