// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattermost/reference-annotator/config"
	"github.com/mattermost/reference-annotator/logger"
	"github.com/mattermost/reference-annotator/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "annotator",
		Short: "Find reference articles for chat answers",
		Long: `annotator links the topics of chat answers to reference articles.

It serves the annotation and chat API, annotates text from the command line and
prepares the database used for chat history and persistent annotation caching.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the annotation and chat API until interrupted. The configuration file is
watched and changes are applied without a restart.`,
		Example: `  annotator serve -c annotator.yaml
  WIKIFIER_USER_KEY=... annotator serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCommand(cmd.Context(), configPath)
		},
	}

	var timeout time.Duration
	annotateCmd := &cobra.Command{
		Use:   "annotate [text|-]",
		Short: "Print the references found in text",
		Long:  `Print the ranked references found in text. With "-" or no argument the text is read from standard input.`,
		Example: `  annotator annotate "Isaac Newton formulated the laws of motion."
  cat answer.txt | annotator annotate -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return annotateCommand(ctx, configPath, text, cmd.OutOrStdout())
		},
	}
	annotateCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateCommand(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(migrateCmd)

	return rootCmd
}

// setup loads the configuration and builds the service around it.
func setup(ctx context.Context, configPath string) (*server.Server, *config.Container, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Debug, cfg.Logging.File)
	if err != nil {
		return nil, nil, nil, err
	}

	container := config.NewContainer(cfg)
	srv, err := server.New(ctx, container, log)
	if err != nil {
		_ = log.Flush()
		return nil, nil, nil, err
	}
	return srv, container, log, nil
}

func serveCommand(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, container, log, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warn("Failed to close server", "error", err)
		}
		_ = log.Flush()
	}()

	if configPath != "" {
		if err := config.Watch(ctx, configPath, container, log); err != nil {
			log.Warn("Configuration changes will not be applied until restart", "error", err)
		}
	}

	return srv.Serve(ctx)
}

func annotateCommand(ctx context.Context, configPath, text string, out io.Writer) error {
	srv, _, log, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = srv.Close()
		_ = log.Flush()
	}()

	entries, err := srv.Annotate(ctx, text)
	if err != nil {
		return err
	}
	printReferences(out, entries)
	return nil
}

func migrateCommand(ctx context.Context, configPath string, out io.Writer) error {
	srv, _, log, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = srv.Close()
		_ = log.Flush()
	}()

	if err := srv.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Database is up to date.")
	return nil
}

func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read standard input: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
