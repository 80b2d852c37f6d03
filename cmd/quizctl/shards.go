package main

import (
	"github.com/spf13/cobra"
)

func newShardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shards",
		Short: "Manage the daemon's shard cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate",
		Short: "Drop the shard and result caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/api/v1/shards/invalidate", nil)
		},
	})
	return cmd
}
