package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/duskd/internal/app"
	"github.com/dokzlo13/duskd/internal/config"
	"github.com/dokzlo13/duskd/internal/suntime"
)

type options struct {
	ConfigPath string
	LogLevel   string
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:           "duskd",
		Short:         "Wake/sleep orchestrator for a sunlight-aware staircase controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		runCommand(opts),
		cycleCommand(opts),
		sunCommand(opts),
		stateCommand(opts),
	)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("duskd failed")
	}
}

func runCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run wake cycles until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(opts)
			if err != nil {
				return err
			}
			log.Info().Str("config", opts.ConfigPath).Msg("Starting duskd")
			return app.New(cfg).Run(app.SignalContext())
		},
	}
}

func cycleCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single wake cycle and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(opts)
			if err != nil {
				return err
			}
			rep, err := app.New(cfg).RunCycle(app.SignalContext())
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}
}

func sunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "sun [today|tomorrow]",
		Short:     "Fetch the sunrise/sunset window once",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(suntime.Today), string(suntime.Tomorrow)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(opts)
			if err != nil {
				return err
			}

			day := suntime.Today
			if len(args) == 1 {
				switch suntime.Day(args[0]) {
				case suntime.Today, suntime.Tomorrow:
					day = suntime.Day(args[0])
				default:
					return fmt.Errorf("unknown day %q", args[0])
				}
			}

			res, err := app.NewSunClient(cfg).Fetch(app.SignalContext(), day)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"day":      res.Day,
				"reported": res.Raw.String(),
				"window":   res.Window.String(),
				"attempts": res.Attempts,
			})
		},
	}
}

func stateCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show persisted values and recent ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(opts)
			if err != nil {
				return err
			}
			st, err := app.Inspect(cfg, limit)
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of ledger entries to show")
	return cmd
}

func load(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Log.GetLevel()
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	setupLogging(level, cfg.Log.UseJSON, cfg.Log.Colors)
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
