package commands

import (
	"errors"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/cli/config"
	"github.com/conduit-lang/portal/internal/cli/ui"
	"github.com/conduit-lang/portal/internal/logging"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globalOptions holds the persistent flags and the state built from them
type globalOptions struct {
	configPath string
	verbose    bool
	noColor    bool

	logger *zap.Logger
}

// configError marks failures that come from loading or validating config
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// load reads the configuration and builds the logger it describes
func (o *globalOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, &configError{err: err}
	}

	level := cfg.Log.Level
	if o.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return nil, nil, &configError{err: err}
	}
	o.logger = logger

	return cfg, logger, nil
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "portal",
		Short: "Multi-tenant client portal server",
		Long: color.CyanString(`Portal - multi-tenant client portal

Portal takes contact-form leads from each tenant's public site, lets staff
qualify and convert them into client projects, and surfaces overdue invoices,
stale projects and waiting leads as alerts.

Features:
  • Per-tenant isolation by host or X-Tenant header
  • Transactional lead conversion with a durable job queue
  • Redis-backed rate limiting and alert caching
  • Single binary with embedded migrations`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./portal.yml or /etc/portal/portal.yml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewServeCommand(opts))
	rootCmd.AddCommand(NewMigrateCommand(opts))
	rootCmd.AddCommand(NewUserCommand(opts))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the portal version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Fprint(out, "Portal version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			ui.ConfigError(cfgErr.err, color.NoColor).Write(os.Stderr)
		} else {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
