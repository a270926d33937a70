// Package msgexport
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgexport

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/mooijtech/go-msg-export/pkg/msg"
	"github.com/rotisserie/eris"
)

// MboxFileName is the mailbox written by the mbox strategy.
const MboxFileName = "export.mbox"

// ExportStrategyMbox implements exporting to a single mbox file.
// Appends are serialized; Close finishes the mailbox.
type ExportStrategyMbox struct {
	mutex      sync.Mutex
	outputFile *os.File
	buffer     *bufio.Writer
	writer     *mbox.Writer
}

func (exportStrategyMbox *ExportStrategyMbox) Name() string {
	return "mbox"
}

func (exportStrategyMbox *ExportStrategyMbox) Export(message *msg.Message, inputFile string, exportContext ExportContext) error {
	exportStrategyMbox.mutex.Lock()
	defer exportStrategyMbox.mutex.Unlock()

	if exportStrategyMbox.writer == nil {
		if err := exportStrategyMbox.open(exportContext.OutputDirectory); err != nil {
			return err
		}
	}

	from := message.Sender.Mailbox()

	if from == "" {
		from = "MAILER-DAEMON"
	}

	date := message.ReceivedOn

	if date.IsZero() {
		date = message.SentOn
	}

	if date.IsZero() {
		date = time.Now()
	}

	messageWriter, err := exportStrategyMbox.writer.CreateMessage(from, date)

	if err != nil {
		return eris.Wrapf(err, "failed to append %s", inputFile)
	}

	return WriteMessage(messageWriter, message, exportContext)
}

func (exportStrategyMbox *ExportStrategyMbox) open(outputDirectory string) error {
	if err := os.MkdirAll(outputDirectory, 0755); err != nil {
		return eris.Wrapf(err, "failed to create %s", outputDirectory)
	}

	outputPath := filepath.Join(outputDirectory, MboxFileName)
	outputFile, err := os.Create(outputPath)

	if err != nil {
		return eris.Wrapf(err, "failed to create %s", outputPath)
	}

	exportStrategyMbox.outputFile = outputFile
	exportStrategyMbox.buffer = bufio.NewWriter(outputFile)
	exportStrategyMbox.writer = mbox.NewWriter(exportStrategyMbox.buffer)

	return nil
}

// Close finishes the mailbox. The next Export starts a new one.
func (exportStrategyMbox *ExportStrategyMbox) Close() error {
	exportStrategyMbox.mutex.Lock()
	defer exportStrategyMbox.mutex.Unlock()

	if exportStrategyMbox.writer == nil {
		return nil
	}

	defer func() {
		exportStrategyMbox.writer = nil
		exportStrategyMbox.buffer = nil
		exportStrategyMbox.outputFile = nil
	}()

	if err := exportStrategyMbox.writer.Close(); err != nil {
		_ = exportStrategyMbox.outputFile.Close()
		return eris.Wrap(err, "failed to finish the mailbox")
	}

	if err := exportStrategyMbox.buffer.Flush(); err != nil {
		_ = exportStrategyMbox.outputFile.Close()
		return eris.Wrap(err, "failed to flush the mailbox")
	}

	return exportStrategyMbox.outputFile.Close()
}
