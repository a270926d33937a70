// Package msgexport
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgexport

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mooijtech/go-msg-export/pkg/metrics"
	"github.com/mooijtech/go-msg-export/pkg/msg"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// ErrNoInputFiles is returned when the inputs hold no .msg file.
var ErrNoInputFiles = eris.New("no .msg input files")

// ExportStrategy defines the interface all export strategies implement.
// Export may be called from several goroutines at once. Strategies that
// implement io.Closer are closed once every input has been exported.
type ExportStrategy interface {
	Name() string
	Export(message *msg.Message, inputFile string, exportContext ExportContext) error
}

// GetAllExportStrategies returns all export strategies.
func GetAllExportStrategies() []ExportStrategy {
	return []ExportStrategy{
		&ExportStrategyEML{},
		&ExportStrategyFiles{},
		&ExportStrategyMbox{},
		&ExportStrategyMaildir{},
	}
}

// GetExportStrategyByName returns the export strategy by the specified name.
func GetExportStrategyByName(name string) (ExportStrategy, error) {
	for _, strategy := range GetAllExportStrategies() {
		if strategy.Name() == name {
			return strategy, nil
		}
	}

	return nil, eris.Errorf("failed to find export strategy by name: %s", name)
}

// ExecuteExportStrategy executes the export strategy.
// Decodes every input file and calls Export on the export strategy for each message.
// A failing input is logged and skipped; the returned error counts the failures.
func ExecuteExportStrategy(exportStrategy ExportStrategy, exportContext ExportContext) error {
	Logger.Infof("Executing export strategy: %s", exportStrategy.Name())

	inputFiles, err := FindInputFiles(exportContext.InputFiles)

	if err != nil {
		return err
	}

	if len(inputFiles) == 0 {
		return ErrNoInputFiles
	}

	workers := exportContext.Workers

	if workers < 1 {
		workers = 1
	}

	Logger.Infof("Processing %d input files with %d workers...", len(inputFiles), workers)

	decoder := msg.NewDecoder(msg.Options{
		MaxDepth: exportContext.MaxDepth,
		Codepage: exportContext.DefaultCodepage,
		Logger:   Logger,
	})

	var failures atomic.Int64
	var group errgroup.Group

	group.SetLimit(workers)

	for _, inputFile := range inputFiles {
		inputFile := inputFile

		group.Go(func() error {
			if err := exportFile(decoder, exportStrategy, inputFile, exportContext); err != nil {
				failures.Add(1)
				Logger.Errorf("Failed to export message (skipping): %s", err)
			}

			return nil
		})
	}

	_ = group.Wait()

	if closer, ok := exportStrategy.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return eris.Wrapf(err, "failed to close export strategy %s", exportStrategy.Name())
		}
	}

	if failed := failures.Load(); failed > 0 {
		return eris.Errorf("failed to export %d of %d input files", failed, len(inputFiles))
	}

	Logger.Infof("Exported %d input files", len(inputFiles))

	return nil
}

// exportFile decodes one input file and exports it.
func exportFile(decoder *msg.Decoder, exportStrategy ExportStrategy, inputFile string, exportContext ExportContext) error {
	start := time.Now()
	message, err := decoder.DecodeFile(inputFile)

	metrics.DecodeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RecordDecodeFailure(err)
		return err
	}

	metrics.RecordMessage(message)

	for _, issue := range message.Issues {
		Logger.Warnf("%s: %s", inputFile, issue)
	}

	if err := exportStrategy.Export(message, inputFile, exportContext); err != nil {
		metrics.ExportFailures.WithLabelValues(exportStrategy.Name()).Inc()
		return eris.Wrapf(err, "failed to export %s", inputFile)
	}

	metrics.MessagesExported.WithLabelValues(exportStrategy.Name()).Inc()

	return nil
}

// FindInputFiles expands directories into the .msg files below them, sorted by path.
func FindInputFiles(inputs []string) ([]string, error) {
	var inputFiles []string

	for _, input := range inputs {
		info, err := os.Stat(input)

		if err != nil {
			return nil, eris.Wrapf(err, "failed to read input %s", input)
		}

		if !info.IsDir() {
			inputFiles = append(inputFiles, input)
			continue
		}

		var found []string

		err = filepath.WalkDir(input, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if !entry.IsDir() && strings.EqualFold(filepath.Ext(path), ".msg") {
				found = append(found, path)
			}

			return nil
		})

		if err != nil {
			return nil, eris.Wrapf(err, "failed to walk %s", input)
		}

		sort.Strings(found)
		inputFiles = append(inputFiles, found...)
	}

	return inputFiles, nil
}
