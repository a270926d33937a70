// Package metrics
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package metrics

import (
	"github.com/mooijtech/go-msg-export/pkg/msg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// RecordMessage counts a decoded message tree.
func RecordMessage(message *msg.Message) {
	for _, current := range message.Messages() {
		MessagesDecoded.WithLabelValues(current.Type.String()).Inc()

		for _, attachment := range current.Attachments() {
			AttachmentsDecoded.WithLabelValues(attachment.Kind.String()).Inc()
		}
	}
}

// RecordDecodeFailure counts an input file that could not be decoded.
func RecordDecodeFailure(err error) {
	DecodeFailures.WithLabelValues(msg.KindOf(err).String()).Inc()
}

// WriteTextfile writes the default registry to path in the text format read
// by the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return eris.Wrapf(err, "failed to write metrics to %s", path)
	}

	return nil
}
