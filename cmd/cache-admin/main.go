package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hranalytics/explaind/internal/cachestore"
)

var (
	cacheFile     string
	redisAddr     string
	redisPassword string
	redisDB       int
	postgresConn  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cache-admin",
		Short: "Admin tool for the global explanation cache",
		Long: `Inspect, clear and migrate the cached global explanation across the
supported backends (file, redis, postgres).`,
	}

	rootCmd.PersistentFlags().StringVar(&cacheFile, "cache-file", "explain_global_cache.json", "Path for the file backend")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Address for the redis backend")
	rootCmd.PersistentFlags().StringVar(&redisPassword, "redis-password", "", "Password for the redis backend")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "Database number for the redis backend")
	rootCmd.PersistentFlags().StringVar(&postgresConn, "postgres-conn", "", "Connection string for the postgres backend")

	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func showCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the cached global explanation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			store, err := openStore(backend)
			if err != nil {
				return err
			}
			defer store.Close()

			explanation, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load cache: %w", err)
			}
			if explanation == nil {
				fmt.Println("cache miss (no valid entry)")
				return nil
			}

			data, err := json.MarshalIndent(explanation, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "file", "Cache backend (file|redis|postgres)")
	return cmd
}

func clearCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached global explanation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			store, err := openStore(backend)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(ctx); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Printf("Cleared %s cache\n", backend)
			return nil
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "file", "Cache backend (file|redis|postgres)")
	return cmd
}

func migrateCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the cached global explanation between backends",
		Long: `Loads the valid entry from the source backend and saves it to the target.
An expired or missing source entry aborts the migration; the TTL restarts
from the migration time on the target.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			src, err := openStore(from)
			if err != nil {
				return fmt.Errorf("source backend: %w", err)
			}
			defer src.Close()

			dst, err := openStore(to)
			if err != nil {
				return fmt.Errorf("target backend: %w", err)
			}
			defer dst.Close()

			explanation, err := src.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load from %s: %w", from, err)
			}
			if explanation == nil {
				return fmt.Errorf("no valid entry in %s backend", from)
			}

			if err := dst.Save(ctx, explanation); err != nil {
				return fmt.Errorf("failed to save to %s: %w", to, err)
			}

			fmt.Printf("Migrated global explanation (%d features) from %s to %s\n",
				len(explanation.FeatureImportance), from, to)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "file", "Source backend (file|redis|postgres)")
	cmd.Flags().StringVar(&to, "to", "redis", "Target backend (file|redis|postgres)")
	return cmd
}

func openStore(backend string) (cachestore.Store, error) {
	switch backend {
	case "file":
		return cachestore.NewFileStore(cacheFile), nil
	case "redis":
		return cachestore.NewRedisStore(redisAddr, redisPassword, redisDB)
	case "postgres":
		return cachestore.NewPostgresStore(postgresConn)
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
}
