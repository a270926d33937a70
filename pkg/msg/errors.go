// Package msg
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msg

import (
	"github.com/mooijtech/go-msg-export/pkg/cfb"
	"github.com/mooijtech/go-msg-export/pkg/mapi"
	"github.com/rotisserie/eris"
)

// ErrNestingTooDeep marks an attachment whose embedded message is nested beyond Options.MaxDepth.
var ErrNestingTooDeep = eris.New("embedded messages nested too deep")

// ErrorKind classifies decode errors.
type ErrorKind int

// Error kinds.
const (
	KindUnknown ErrorKind = iota
	KindCorruptHeader
	KindTruncatedStream
	KindCyclicChain
	KindMalformedDirectory
	KindPropertyStreamMissing
	KindNestingTooDeep
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindCorruptHeader:
		return "corrupt_header"
	case KindTruncatedStream:
		return "truncated_stream"
	case KindCyclicChain:
		return "cyclic_chain"
	case KindMalformedDirectory:
		return "malformed_directory"
	case KindPropertyStreamMissing:
		return "property_stream_missing"
	case KindNestingTooDeep:
		return "nesting_too_deep"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{cfb.ErrCorruptHeader, KindCorruptHeader},
	{cfb.ErrTruncatedStream, KindTruncatedStream},
	{cfb.ErrCyclicChain, KindCyclicChain},
	{cfb.ErrMalformedDirectory, KindMalformedDirectory},
	{mapi.ErrPropertyStreamMissing, KindPropertyStreamMissing},
	{ErrNestingTooDeep, KindNestingTooDeep},
}

// KindOf returns the kind of a decode error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	for _, candidate := range kinds {
		if eris.Is(err, candidate.err) {
			return candidate.kind
		}
	}

	return KindUnknown
}
