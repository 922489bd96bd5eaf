// Command driftctl is the minimal operator CLI for the catalog: applying
// its schema, registering a storage node by hand, and reading back the
// compliance reports the HTTP API also exposes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/config"
)

func main() {
	_ = godotenv.Load()
	root := &cobra.Command{Use: "driftctl"}
	var dsn string
	root.PersistentFlags().StringVar(&dsn, "catalog-dsn", "", "Postgres catalog connection string (defaults to config)")

	open := func(ctx context.Context) (*catalog.Store, error) {
		if dsn == "" {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return nil, err
			}
			dsn = cfg.Catalog.DSN
		}
		return catalog.Open(ctx, dsn)
	}

	root.AddCommand(migrateCmd(open))
	root.AddCommand(registerNodeCmd(open))
	root.AddCommand(sovereigntyCmd(open))
	root.AddCommand(listNodesCmd(open))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd(open func(context.Context) (*catalog.Store, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply the catalog schema (safe to run repeatedly)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Migrate(ctx)
		},
	}
}

func registerNodeCmd(open func(context.Context) (*catalog.Store, error)) *cobra.Command {
	var n catalog.Node
	var storageGB, bandwidthMbps string
	cmd := &cobra.Command{
		Use:   "register-node [peer-id]",
		Short: "manually register a storage node row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n.PeerID = args[0]
			if storageGB != "" {
				v, err := strconv.ParseFloat(storageGB, 64)
				if err != nil {
					return fmt.Errorf("invalid --storage-gb: %w", err)
				}
				n.StorageCapacityGB = v
			}
			if bandwidthMbps != "" {
				v, err := strconv.ParseFloat(bandwidthMbps, 64)
				if err != nil {
					return fmt.Errorf("invalid --bandwidth-mbps: %w", err)
				}
				n.BandwidthCapacityMbps = v
			}
			ctx := cmd.Context()
			store, err := open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.RegisterNode(ctx, n)
		},
	}
	cmd.Flags().StringVar(&n.IPAddress, "ip", "", "node's advertised IP address")
	cmd.Flags().StringVar(&n.CountryCode, "country", "", "node's declared country code")
	cmd.Flags().StringVar(&storageGB, "storage-gb", "", "declared storage capacity in GB")
	cmd.Flags().StringVar(&bandwidthMbps, "bandwidth-mbps", "", "declared bandwidth capacity in Mbps")
	return cmd
}

func sovereigntyCmd(open func(context.Context) (*catalog.Store, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "sovereignty [bucket]",
		Short: "print a bucket's country distribution of shard placements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			report, err := store.SovereigntyReport(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func listNodesCmd(open func(context.Context) (*catalog.Store, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list-nodes",
		Short: "print every active storage node row",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			nodes, err := store.ListActiveNodes(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(nodes)
		},
	}
}
