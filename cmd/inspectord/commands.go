package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/dshills/webinspector/internal/app"
	"github.com/dshills/webinspector/internal/config"
	"github.com/dshills/webinspector/internal/dispatcher"
	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
	listen     string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "inspectord",
		Short: "Remote inspector for a scriptable HTML page",
		Long: `inspectord loads an HTML page, runs its scripts and exposes the page to a
remote inspector frontend over a websocket.

Configuration is layered: built-in defaults, then the --config file (TOML or
YAML), then a .env file, then INSPECTOR_* environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Path to configuration file (.toml, .yaml)")
	pf.StringVar(&flags.envFile, "env-file", "", "Path to a dotenv file (default .env if present)")
	pf.StringVarP(&flags.listen, "listen", "l", "", "Listen address for the inspector endpoint")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format (console, json)")

	root.AddCommand(
		newServeCmd(&flags),
		newMethodsCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig layers the command line over the loaded configuration.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, config.LoadOptions, error) {
	opts := config.LoadOptions{File: flags.configFile, EnvFile: flags.envFile}
	cfg, err := config.Load(opts)
	if err != nil {
		return cfg, opts, err
	}
	fs := cmd.Flags()
	if fs.Changed("listen") {
		cfg.Listen = flags.listen
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	return cfg, opts, cfg.Validate()
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [url-or-file]",
		Short: "Serve the inspector endpoint, optionally opening a page",
		Example: `  inspectord serve ./index.html
  inspectord serve --listen :9333 https://example.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loadOpts, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger, level, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			opts := app.Options{Config: cfg, Logger: logger, Level: &level}
			if loadOpts.File != "" {
				opts.Watch = &loadOpts
			}
			if len(args) == 1 {
				opts.Target = args[0]
			}
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(ctx context.Context, opts app.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer application.Close()

	ln, err := net.Listen("tcp", opts.Config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.Config.Listen, err)
	}
	opts.Logger.Info("inspector ready",
		zap.String("endpoint", "ws://"+ln.Addr().String()+"/inspector"),
		zap.String("version", version),
	)
	return application.Run(ctx, ln)
}

func newMethodsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List the protocol methods the inspector accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := dispatcher.NewRegistry()
			inspector.New(inspector.Options{}).RegisterCommands(registry)

			out := cmd.OutOrStdout()
			if !asJSON {
				for _, m := range registry.List() {
					fmt.Fprintln(out, m)
				}
				return nil
			}
			body, err := sjson.Set(`{}`, "methods", registry.List())
			if err != nil {
				return err
			}
			_, err = out.Write(pretty.Pretty([]byte(body)))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "inspectord %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}
