// Package msgexport
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgexport

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/emersion/go-maildir"
	"github.com/mooijtech/go-msg-export/pkg/msg"
	"github.com/rotisserie/eris"
)

// MaildirName is the maildir written by the maildir strategy.
const MaildirName = "maildir"

// ExportStrategyMaildir implements delivering every message into a maildir.
type ExportStrategyMaildir struct {
	mutex       sync.Mutex
	initialized map[string]bool
}

func (exportStrategyMaildir *ExportStrategyMaildir) Name() string {
	return "maildir"
}

func (exportStrategyMaildir *ExportStrategyMaildir) Export(message *msg.Message, inputFile string, exportContext ExportContext) error {
	dir, err := exportStrategyMaildir.dir(exportContext.OutputDirectory)

	if err != nil {
		return err
	}

	delivery, err := maildir.NewDelivery(string(dir))

	if err != nil {
		return eris.Wrapf(err, "failed to start delivery of %s", inputFile)
	}

	if err := WriteMessage(delivery, message, exportContext); err != nil {
		if abortErr := delivery.Abort(); abortErr != nil {
			Logger.Warnf("Failed to abort delivery of %s: %s", inputFile, abortErr)
		}

		return eris.Wrapf(err, "failed to deliver %s", inputFile)
	}

	return delivery.Close()
}

// dir creates the maildir once per output directory.
func (exportStrategyMaildir *ExportStrategyMaildir) dir(outputDirectory string) (maildir.Dir, error) {
	exportStrategyMaildir.mutex.Lock()
	defer exportStrategyMaildir.mutex.Unlock()

	dir := maildir.Dir(filepath.Join(outputDirectory, MaildirName))

	if exportStrategyMaildir.initialized[string(dir)] {
		return dir, nil
	}

	if err := os.MkdirAll(outputDirectory, 0755); err != nil {
		return "", eris.Wrapf(err, "failed to create %s", outputDirectory)
	}

	if err := dir.Init(); err != nil && !os.IsExist(err) {
		return "", eris.Wrapf(err, "failed to create maildir %s", dir)
	}

	if exportStrategyMaildir.initialized == nil {
		exportStrategyMaildir.initialized = make(map[string]bool)
	}

	exportStrategyMaildir.initialized[string(dir)] = true

	return dir, nil
}
