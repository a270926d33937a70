// Package metrics holds the Prometheus metrics of the exporter.
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesDecoded counts decoded messages, nested ones included, by message type.
	MessagesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgexport_messages_decoded_total",
		Help: "Total number of messages decoded by type",
	}, []string{"type"})

	// AttachmentsDecoded counts attachments by kind.
	AttachmentsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgexport_attachments_decoded_total",
		Help: "Total number of attachments decoded by kind",
	}, []string{"kind"})

	// DecodeFailures counts input files that failed to decode, by error kind.
	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgexport_decode_failures_total",
		Help: "Total number of input files that failed to decode",
	}, []string{"kind"})

	// MessagesExported counts input files exported, by strategy.
	MessagesExported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgexport_messages_exported_total",
		Help: "Total number of input files exported by strategy",
	}, []string{"strategy"})

	// ExportFailures counts input files that decoded but failed to export.
	ExportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgexport_export_failures_total",
		Help: "Total number of input files that failed to export",
	}, []string{"strategy"})

	// DecodeDuration observes the time taken to decode one input file.
	DecodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "msgexport_decode_duration_seconds",
		Help:    "Time taken to decode one input file",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	})
)
