// Package msgexport
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgexport

// ExportContext defines the context used when using an export strategy.
type ExportContext struct {
	// InputFiles holds .msg files and directories, which are walked for .msg files.
	InputFiles          []string
	OutputDirectory     string
	IsOnlyPlaintextBody bool
	// Workers is the number of input files decoded at once.
	Workers int
	// MaxDepth limits embedded message nesting, 0 uses the decoder default.
	MaxDepth int
	// DefaultCodepage decodes ANSI strings of messages declaring no code page.
	DefaultCodepage int
}
