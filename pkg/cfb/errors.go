// Package cfb
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package cfb

import "github.com/rotisserie/eris"

// Structural errors, matched with eris.Is or errors.Is.
var (
	// ErrCorruptHeader is returned when the input is not a compound file.
	ErrCorruptHeader = eris.New("corrupt compound file header")
	// ErrTruncatedStream is returned when a sector chain ends before the declared length.
	ErrTruncatedStream = eris.New("truncated stream")
	// ErrCyclicChain is returned when a sector chain visits the same sector twice.
	ErrCyclicChain = eris.New("cyclic sector chain")
	// ErrMalformedDirectory is returned when the directory tree is inconsistent.
	ErrMalformedDirectory = eris.New("malformed directory")
)
