// Package cfb
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package cfb

import (
	"encoding/binary"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
)

const directoryEntrySize = 128

// EntryType is the object type of a directory entry.
type EntryType uint8

// Directory entry types.
const (
	TypeEmpty   EntryType = 0
	TypeStorage EntryType = 1
	TypeStream  EntryType = 2
	TypeRoot    EntryType = 5
)

// String returns the name of the entry type.
func (t EntryType) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeStorage:
		return "storage"
	case TypeStream:
		return "stream"
	case TypeRoot:
		return "root"
	default:
		return "unknown"
	}
}

// Entry is a storage or stream in the directory tree.
// Entries are owned by their File and must not be modified.
type Entry struct {
	Name        string
	Type        EntryType
	CLSID       [16]byte
	StartSector uint32
	Size        uint64

	index    int
	left     uint32
	right    uint32
	child    uint32
	children []*Entry
	byName   map[string]*Entry
}

// Index returns the position of the entry in the directory stream.
func (e *Entry) Index() int {
	return e.index
}

// IsStorage reports whether the entry can hold children.
func (e *Entry) IsStorage() bool {
	return e.Type == TypeStorage || e.Type == TypeRoot
}

// IsStream reports whether the entry holds data.
func (e *Entry) IsStream() bool {
	return e.Type == TypeStream
}

// SizeClass returns the allocation table holding the stream data.
func (e *Entry) SizeClass() SizeClass {
	if e.Type == TypeStream && e.Size < miniStreamCutoff {
		return Mini
	}

	return Regular
}

// Children returns the children of a storage in directory order.
func (e *Entry) Children() []*Entry {
	return e.children
}

// Child finds a direct child by name, ignoring case.
func (e *Entry) Child(name string) *Entry {
	if e == nil || e.byName == nil {
		return nil
	}

	return e.byName[strings.ToUpper(name)]
}

// Root returns the root storage.
func (f *File) Root() *Entry {
	return &f.entries[0]
}

// Find resolves a slash separated path of names below the root storage.
func (f *File) Find(path string) *Entry {
	entry := f.Root()

	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}

		if entry = entry.Child(name); entry == nil {
			return nil
		}
	}

	return entry
}

// loadDirectory reads all directory entries and links them into a tree.
func (f *File) loadDirectory() error {
	f.logger.Debugf("Loading directory starting at sector %d", f.header.FirstDirSector)

	data, err := f.readWholeChain(f.header.FirstDirSector)

	if err != nil {
		return eris.Wrap(err, "failed to read directory")
	}

	count := len(data) / directoryEntrySize

	if count == 0 {
		return eris.Wrap(ErrMalformedDirectory, "directory holds no entries")
	}

	f.entries = make([]Entry, count)

	for i := 0; i < count; i++ {
		if err := parseEntry(data[i*directoryEntrySize:(i+1)*directoryEntrySize], i, f.header.MajorVersion, &f.entries[i]); err != nil {
			return err
		}
	}

	if f.entries[0].Type != TypeRoot {
		return eris.Wrapf(ErrMalformedDirectory, "entry 0 is a %s, not the root", f.entries[0].Type)
	}

	return f.buildTree()
}

// parseEntry decodes one 128 byte directory entry.
func parseEntry(data []byte, index int, majorVersion uint16, entry *Entry) error {
	entry.index = index
	entry.Type = EntryType(data[66])

	switch entry.Type {
	case TypeEmpty:
		entry.left, entry.right, entry.child = NoStream, NoStream, NoStream
		return nil
	case TypeStorage, TypeStream, TypeRoot:
	default:
		return eris.Wrapf(ErrMalformedDirectory, "entry %d has unsupported type %d", index, data[66])
	}

	if entry.Type == TypeRoot && index != 0 {
		return eris.Wrapf(ErrMalformedDirectory, "entry %d is a second root", index)
	}

	nameLength := int(binary.LittleEndian.Uint16(data[64:]))

	if nameLength > 64 || nameLength%2 != 0 {
		return eris.Wrapf(ErrMalformedDirectory, "entry %d has invalid name length %d", index, nameLength)
	}

	if nameLength >= 2 {
		entry.Name = decodeUTF16(data[:nameLength-2])
	}

	entry.left = binary.LittleEndian.Uint32(data[68:])
	entry.right = binary.LittleEndian.Uint32(data[72:])
	entry.child = binary.LittleEndian.Uint32(data[76:])
	copy(entry.CLSID[:], data[80:96])
	entry.StartSector = binary.LittleEndian.Uint32(data[116:])
	entry.Size = binary.LittleEndian.Uint64(data[120:])

	if majorVersion < 4 {
		entry.Size &= 0xFFFFFFFF
	}

	return nil
}

// buildTree links children into their storages with an in-order walk of each
// sibling tree. Every entry may be reached once.
func (f *File) buildTree() error {
	visited := make([]bool, len(f.entries))
	visited[0] = true
	storages := []*Entry{f.Root()}

	for len(storages) > 0 {
		storage := storages[len(storages)-1]
		storages = storages[:len(storages)-1]
		storage.byName = make(map[string]*Entry)

		var stack []*Entry

		id := storage.child

		for id != NoStream || len(stack) > 0 {
			for id != NoStream {
				entry, err := f.link(storage, id, visited)

				if err != nil {
					return err
				}

				stack = append(stack, entry)
				id = entry.left
			}

			entry := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			key := strings.ToUpper(entry.Name)

			if _, exists := storage.byName[key]; exists {
				f.logger.Warnf("Storage %q holds duplicate name %q, keeping the first", storage.Name, entry.Name)
			} else {
				storage.byName[key] = entry
			}

			storage.children = append(storage.children, entry)

			if entry.IsStorage() {
				storages = append(storages, entry)
			}

			id = entry.right
		}
	}

	return nil
}

// link validates a link from storage to the entry at id and marks it visited.
func (f *File) link(storage *Entry, id uint32, visited []bool) (*Entry, error) {
	if int64(id) >= int64(len(f.entries)) {
		return nil, eris.Wrapf(ErrMalformedDirectory, "storage %q links to entry %d outside the %d entries", storage.Name, id, len(f.entries))
	}

	if visited[id] {
		return nil, eris.Wrapf(ErrMalformedDirectory, "entry %d is linked more than once (below storage %q)", id, storage.Name)
	}

	visited[id] = true
	entry := &f.entries[id]

	if entry.Type == TypeEmpty || entry.Type == TypeRoot {
		return nil, eris.Wrapf(ErrMalformedDirectory, "storage %q links to %s entry %d", storage.Name, entry.Type, id)
	}

	return entry, nil
}

// decodeUTF16 decodes little-endian UTF-16 without a byte order mark.
func decodeUTF16(data []byte) string {
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)

	if err != nil {
		return ""
	}

	return string(decoded)
}
