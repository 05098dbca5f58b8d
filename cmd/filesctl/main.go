package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-files/pkg/filestore/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand(buildFromEnv)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// RuntimeBuilder opens the file service for one command
type RuntimeBuilder func(ctx context.Context, cmd *cobra.Command) (*config.Runtime, error)

// buildFromEnv reads the same environment as the server, with flag overrides
func buildFromEnv(ctx context.Context, cmd *cobra.Command) (*config.Runtime, error) {
	opts := []config.Option{config.WithEnv()}

	if catalogURL, _ := cmd.Flags().GetString("catalog-url"); catalogURL != "" {
		opts = append(opts, config.WithCatalogURL(catalogURL))
	}
	if storageURL, _ := cmd.Flags().GetString("storage-url"); storageURL != "" {
		opts = append(opts, config.WithStorageURL(storageURL))
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts = append(opts, config.WithLogLevel("debug"))
	} else {
		opts = append(opts, config.WithLogLevel("error"))
	}

	serverConfig, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	serverConfig.SetupLogger()

	return serverConfig.Build(ctx)
}

func NewRootCommand(build RuntimeBuilder) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "filesctl",
		Short: "Manage files in a simple-files store",
		Long: `filesctl talks to the blob store and catalog directly, using the
same environment variables as the server (CATALOG_URL, STORAGE_URL, ...).

Configuration can be loaded from a .env file in the current directory.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("catalog-url", "", "catalog URL (overrides CATALOG_URL)")
	rootCmd.PersistentFlags().String("storage-url", "", "storage URL (overrides STORAGE_URL)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewUploadCommand(build))
	rootCmd.AddCommand(NewDownloadCommand(build))
	rootCmd.AddCommand(NewListCommand(build))
	rootCmd.AddCommand(NewGetCommand(build))
	rootCmd.AddCommand(NewDeleteCommand(build))
	rootCmd.AddCommand(NewSweepCommand(build))
	rootCmd.AddCommand(NewEnvCommand())

	return rootCmd
}
