package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portfolio",
		Short:         "Rank projects by impact per unit of effort against team capacity",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./portfolio.yaml if present)")

	root.AddCommand(serveCmd())
	root.AddCommand(rankCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(migrateCmd())

	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API, metrics server and planner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func rankCmd() *cobra.Command {
	var opts rankOptions

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank a portfolio from a file or a running API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.capacitySet = cmd.Flags().Changed("capacity")
			return runRank(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "JSON or YAML file with a list of projects (- for stdin)")
	cmd.Flags().StringVar(&opts.apiURL, "api", "", "base URL of a running portfolio API")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token for the API")
	cmd.Flags().Float64Var(&opts.capacity, "capacity", 0, "team capacity in effort weight (default: from config)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON")
	cmd.MarkFlagsMutuallyExclusive("file", "api")
	cmd.MarkFlagsOneRequired("file", "api")
	return cmd
}

func seedCmd() *cobra.Command {
	var (
		file   string
		apiURL string
		token  string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the projects in a file through a running API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), cmd.OutOrStdout(), file, apiURL, token)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON or YAML file with a list of projects (- for stdin)")
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8700", "base URL of a running portfolio API")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for the API")
	cmd.MarkFlagRequired("file")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}
