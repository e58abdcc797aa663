// Command cursor-agent-acp runs the Agent Client Protocol adapter over
// stdio by default, plus `--validate` and `auth login|logout|status`
// utility subcommands.
//
// Generalizes m4xw311-compell/cmd/compell/main.go's flag-parsed wiring
// (config load -> component construction -> acp.Run) into a cobra.Command
// tree, per spec section 6's CLI surface and section 4.5's bridge.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spjoes/cursor-agent-acp/internal/bridge"
	"github.com/spjoes/cursor-agent-acp/internal/config"
	"github.com/spjoes/cursor-agent-acp/internal/dispatcher"
	"github.com/spjoes/cursor-agent-acp/internal/extension"
	"github.com/spjoes/cursor-agent-acp/internal/logging"
	"github.com/spjoes/cursor-agent-acp/internal/prompt"
	"github.com/spjoes/cursor-agent-acp/internal/session"
	"github.com/spjoes/cursor-agent-acp/internal/slashcmd"
	"github.com/spjoes/cursor-agent-acp/internal/toolcall"
	"github.com/spjoes/cursor-agent-acp/internal/tools"
	"github.com/spjoes/cursor-agent-acp/internal/transport"
)

func main() {
	root := &cobra.Command{
		Use:           "cursor-agent-acp",
		Short:         "Agent Client Protocol adapter for cursor-agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var validateFlag bool
	root.Flags().BoolVar(&validateFlag, "validate", false, "Validate the configuration file and exit")
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if validateFlag {
			return validateCmd().RunE(cmd, args)
		}
		return runServe(cmd, args)
	}
	root.AddCommand(validateCmd())
	root.AddCommand(authCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cursor-agent-acp: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logging.New("adapter", cfg.LogLevel)

	sessions := session.NewManager(cfg.SessionDir, cfg.MaxSessions, cfg.SessionTimeout)
	br := bridge.New(cfg.CursorBinary, logging.New("bridge", cfg.LogLevel))

	t := transport.New(os.Stdin, os.Stdout, logging.New("transport", cfg.LogLevel))

	slash := slashcmd.New()
	slash.Register(slashcmd.Command{Name: "model", Description: "Switch the active model", InputHint: "<model-id>"})

	toolcalls := toolcall.New(t, logging.New("toolcall", cfg.LogLevel))

	toolRegistry := tools.NewRegistry()
	tools.NewCursorProvider(br, cfg.AllowedCommands, toolRegistry)
	// The filesystem provider is registered lazily by the dispatcher once
	// initialize declares both fs.readTextFile/fs.writeTextFile capabilities.

	promptHandler := prompt.New(sessions, br, t, slash, cfg.Retries, cfg.Timeout, logging.New("prompt", cfg.LogLevel))

	extensions := extension.New()

	d := dispatcher.New(sessions, promptHandler, toolcalls, toolRegistry, slash, extensions, t, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("cursorBinary", cfg.CursorBinary).Msg("cursor-agent-acp starting")
	if err := t.Serve(ctx, d.HandleRequest, d.HandleNotification); err != nil {
		return fmt.Errorf("transport serve: %w", err)
	}
	return nil
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				fmt.Fprintf(os.Stderr, "configuration is invalid: %v\n", err)
				os.Exit(2)
			}
			fmt.Fprintln(os.Stdout, "configuration OK")
			return nil
		},
	}
}

func authCmd() *cobra.Command {
	auth := &cobra.Command{Use: "auth", Short: "Manage cursor-agent authentication"}

	auth.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Run cursor-agent's own login flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			br := bridge.New(cfg.CursorBinary, logging.New("auth", cfg.LogLevel))
			res := br.ExecuteCommand(cmd.Context(), []string{"login"}, bridge.Options{})
			return printCLIResult(res)
		},
	})

	auth.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Run cursor-agent's own logout flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			br := bridge.New(cfg.CursorBinary, logging.New("auth", cfg.LogLevel))
			res := br.ExecuteCommand(cmd.Context(), []string{"logout"}, bridge.Options{})
			return printCLIResult(res)
		},
	})

	auth.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether cursor-agent is authenticated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			br := bridge.New(cfg.CursorBinary, logging.New("auth", cfg.LogLevel))
			authenticated, err := br.CheckAuthentication(cmd.Context())
			if err != nil {
				return err
			}
			if authenticated {
				fmt.Fprintln(os.Stdout, "authenticated")
			} else {
				fmt.Fprintln(os.Stdout, "not authenticated")
			}
			return nil
		},
	})

	return auth
}

func printCLIResult(res *bridge.ExecResult) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	fmt.Fprint(w, res.Stdout)
	if !res.Success {
		return fmt.Errorf("cursor-agent command failed: %s", res.Stderr)
	}
	return nil
}
