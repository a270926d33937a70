// Package msgexport
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgexport

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// maxNameLength is the byte limit of a generated file name.
const maxNameLength = 200

// SafeFileName turns name into a file name valid on common file systems.
// Separators, reserved and control characters become '_'. Empty names become fallback.
func SafeFileName(name string, fallback string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			return '_'
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		default:
			return r
		}
	}, name)

	name = strings.Trim(name, " .")

	if name == "" {
		name = fallback
	}

	if len(name) > maxNameLength {
		extension := filepath.Ext(name)

		if len(extension) > 16 {
			extension = ""
		}

		base := name[:maxNameLength-len(extension)]

		// Do not cut a rune in half.
		for !utf8.ValidString(base) {
			base = base[:len(base)-1]
		}

		name = base + extension
	}

	return name
}

// nameSet hands out file names that are unique within one directory,
// ignoring case.
type nameSet struct {
	mutex sync.Mutex
	used  map[string]bool
}

func newNameSet(reserved ...string) *nameSet {
	names := &nameSet{used: make(map[string]bool)}

	for _, name := range reserved {
		names.used[strings.ToLower(name)] = true
	}

	return names
}

// unique returns name, or name with a " (n)" suffix before the extension when taken.
func (n *nameSet) unique(name string) string {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.used == nil {
		n.used = make(map[string]bool)
	}

	candidate := name
	extension := filepath.Ext(name)
	base := strings.TrimSuffix(name, extension)

	for i := 1; n.used[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, i, extension)
	}

	n.used[strings.ToLower(candidate)] = true

	return candidate
}

// inputBaseName returns the file name of an input file without its extension.
func inputBaseName(inputFile string) string {
	base := filepath.Base(inputFile)

	return SafeFileName(strings.TrimSuffix(base, filepath.Ext(base)), "message")
}
