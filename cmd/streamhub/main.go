package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openclaude/streamhub/internal/config"
	"github.com/openclaude/streamhub/internal/logging"
)

// version is the CLI build version.
const version = "0.1.0"

// options holds the flags shared by every command.
type options struct {
	// ConfigPath is merged after the user, project and local layers.
	ConfigPath string
	// SettingSources limits config layers to load.
	SettingSources []string
	// LogLevel overrides logging.level.
	LogLevel string
	// LogFormat overrides logging.format.
	LogFormat string
	// Verbose forces debug logging.
	Verbose bool
	// Version prints the CLI version.
	Version bool
}

// app carries state resolved before a command runs.
type app struct {
	// cfg is the merged configuration.
	cfg *config.Config
	// logger is built from cfg.Logging.
	logger *slog.Logger
	// closeLog releases file log outputs.
	closeLog func() error
}

// main wires Cobra and executes the CLI.
func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree writing to out and errOut.
func newRootCommand(out io.Writer, errOut io.Writer) *cobra.Command {
	opts := &options{}
	state := &app{}
	rootCmd := &cobra.Command{
		Use:          "streamhub",
		Short:        "Route streamed model output into live conversation panes",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load(opts)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return state.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	applyFlags(rootCmd.PersistentFlags(), opts)
	rootCmd.Flags().BoolVarP(&opts.Version, "version", "v", false, "Output the version number")

	rootCmd.AddCommand(decodeCommand(state))
	rootCmd.AddCommand(replayCommand(state))
	rootCmd.AddCommand(chatCommand(state))
	rootCmd.AddCommand(versionCommand())
	return rootCmd
}

// applyFlags defines the persistent flags.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.SetNormalizeFunc(normalizeFlagName)

	flags.StringVar(&opts.ConfigPath, "config", "", "Config file merged after the default layers")
	flags.StringSliceVar(&opts.SettingSources, "setting-sources", nil, "Config layers to load (user,project,local)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flags.StringVar(&opts.LogFormat, "log-format", "", "Log format (text|json)")
	flags.BoolVar(&opts.Verbose, "verbose", false, "Enable debug logging")
}

// normalizeFlagName accepts underscore and camel-case spellings of dashed flags.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "settingSources":
		return "setting-sources"
	case "logLevel":
		return "log-level"
	case "logFormat":
		return "log-format"
	default:
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	}
}

// versionCommand prints the CLI version without loading configuration.
func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the streamhub version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

// load resolves configuration and the logger.
func (a *app) load(opts *options) error {
	cfg, err := config.Load(config.LoadOptions{
		Sources:      splitList(strings.Join(opts.SettingSources, ",")),
		ExplicitPath: opts.ConfigPath,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.closeLog = closer
	logger.Debug("config loaded", "sources", cfg.Sources)
	return nil
}

// close releases the log output.
func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	closer := a.closeLog
	a.closeLog = nil
	return closer()
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
