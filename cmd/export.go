// go-msg-export is a command-line interface and library for exporting Outlook .msg files.
//
// Copyright (C) 2022  Marten Mooij
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	msgexport "github.com/mooijtech/go-msg-export/pkg"
	"github.com/mooijtech/go-msg-export/pkg/config"
	"github.com/mooijtech/go-msg-export/pkg/metrics"
	"github.com/spf13/cobra"
)

type flags struct {
	configFile      string
	inputs          []string
	outputDirectory string
	strategy        string
	listStrategies  bool
	plaintext       bool
	workers         int
	maxDepth        int
	codepage        int
	logLevel        string
	logFormat       string
	metricsFile     string
}

func main() {
	var options flags

	rootCmd := &cobra.Command{
		Use:          "msg-export [input...]",
		Short:        "Export Outlook .msg files to EML, mbox, Maildir or plain files",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.listStrategies {
				msgexport.Logger.Info("Export strategies:")

				for _, strategy := range msgexport.GetAllExportStrategies() {
					msgexport.Logger.Info("- " + strategy.Name())
				}

				return nil
			}

			cfg, err := loadConfig(cmd, options)

			if err != nil {
				return err
			}

			return run(cfg, append(options.inputs, args...))
		},
	}

	flagSet := rootCmd.Flags()

	flagSet.StringVar(&options.configFile, "config", "", "YAML configuration file")
	flagSet.StringSliceVarP(&options.inputs, "input", "i", nil, "input .msg file or directory (repeatable)")
	flagSet.StringVarP(&options.outputDirectory, "output", "o", "", "sets the output directory")
	flagSet.StringVarP(&options.strategy, "strategy", "s", "", "sets the export strategy")
	flagSet.BoolVar(&options.listStrategies, "strategies", false, "lists all available export strategies")
	flagSet.BoolVar(&options.plaintext, "plaintext", false, "only get the plaintext body (not HTML)")
	flagSet.IntVarP(&options.workers, "workers", "w", 0, "input files decoded at once")
	flagSet.IntVar(&options.maxDepth, "max-depth", 0, "embedded message nesting limit")
	flagSet.IntVar(&options.codepage, "codepage", 0, "code page of ANSI strings in messages declaring none")
	flagSet.StringVar(&options.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.StringVar(&options.logFormat, "log-format", "", "log format (text, json)")
	flagSet.StringVar(&options.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the export")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies the flags the user set over it.
func loadConfig(cmd *cobra.Command, options flags) (*config.Config, error) {
	cfg, err := config.Load(options.configFile)

	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed

	if changed("output") {
		cfg.Export.OutputDirectory = options.outputDirectory
	}

	if changed("strategy") {
		cfg.Export.Strategy = options.strategy
	}

	if changed("plaintext") {
		cfg.Export.PlaintextOnly = options.plaintext
	}

	if changed("workers") {
		cfg.Export.Workers = options.workers
	}

	if changed("max-depth") {
		cfg.Decode.MaxDepth = options.maxDepth
	}

	if changed("codepage") {
		cfg.Decode.DefaultCodepage = options.codepage
	}

	if changed("log-level") {
		cfg.Logging.Level = options.logLevel
	}

	if changed("log-format") {
		cfg.Logging.Format = options.logFormat
	}

	if changed("metrics-file") {
		cfg.Metrics.Textfile = options.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func run(cfg *config.Config, inputs []string) error {
	if err := msgexport.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}

	if len(inputs) == 0 {
		return msgexport.ErrNoInputFiles
	}

	strategy, err := msgexport.GetExportStrategyByName(cfg.Export.Strategy)

	if err != nil {
		return err
	}

	exportErr := msgexport.ExecuteExportStrategy(strategy, msgexport.ExportContext{
		InputFiles:          inputs,
		OutputDirectory:     cfg.Export.OutputDirectory,
		IsOnlyPlaintextBody: cfg.Export.PlaintextOnly,
		Workers:             cfg.Export.Workers,
		MaxDepth:            cfg.Decode.MaxDepth,
		DefaultCodepage:     cfg.Decode.DefaultCodepage,
	})

	// Metrics are written for partial exports too.
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			msgexport.Logger.Errorf("Failed to write metrics: %s", err)
		}
	}

	if exportErr != nil {
		msgexport.Logger.Errorf("Failed to export: %s", exportErr)
	}

	return exportErr
}
