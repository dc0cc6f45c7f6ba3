// Command storefront drives a storefront session from the terminal: log in,
// inspect tokens and work with the cart the way the web client does.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-storefront-session/internal/app"
	"go-storefront-session/internal/config"
	"go-storefront-session/internal/logger"
)

const closeTimeout = 15 * time.Second

type cli struct {
	logLevel string
	events   bool
	noColor  bool

	app *app.App
	out io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout}
	err := c.rootCmd().ExecuteContext(ctx)
	if closeErr := c.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront session and cart client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsApp(cmd) {
				return nil
			}
			return c.open(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	cmd.PersistentFlags().BoolVar(&c.events, "events", false, "Print session and cart events to stderr as JSON lines")
	cmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "Disable colored log output")

	cmd.AddCommand(
		c.loginCommand(),
		c.registerCommand(),
		c.logoutCommand(),
		c.whoamiCommand(),
		c.profileCommand(),
		c.changePasswordCommand(),
		c.refreshCommand(),
		c.tokenCommand(),
		c.cartCommand(),
	)

	return cmd
}

func needsApp(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		switch cmd.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

func (c *cli) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if c.logLevel != "" {
		if err := level.UnmarshalText([]byte(c.logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
	}

	log := logger.New(os.Stderr, level, !c.noColor)
	slog.SetDefault(log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.app = a

	a.Relay.Notices(os.Stderr)
	if c.events {
		a.Relay.Events(os.Stderr)
	}

	return nil
}

// close waits for queued cart syncs so a command never exits with its
// changes only half pushed. It runs after failed commands too.
func (c *cli) close() error {
	if c.app == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := c.app.Close(ctx)
	c.app = nil
	return err
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
