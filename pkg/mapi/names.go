// Package mapi
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package mapi

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/mooijtech/go-msg-export/pkg/cfb"
	"github.com/rotisserie/eris"
)

// Property sets.
var (
	PSMAPI            = uuid.MustParse("00020328-0000-0000-C000-000000000046")
	PSPublicStrings   = uuid.MustParse("00020329-0000-0000-C000-000000000046")
	PSInternetHeaders = uuid.MustParse("00020386-0000-0000-C000-000000000046")
	PSETIDAppointment = uuid.MustParse("00062002-0000-0000-C000-000000000046")
	PSETIDTask        = uuid.MustParse("00062003-0000-0000-C000-000000000046")
	PSETIDAddress     = uuid.MustParse("00062004-0000-0000-C000-000000000046")
	PSETIDCommon      = uuid.MustParse("00062008-0000-0000-C000-000000000046")
	PSETIDLog         = uuid.MustParse("0006200A-0000-0000-C000-000000000046")
	PSETIDNote        = uuid.MustParse("0006200E-0000-0000-C000-000000000046")
)

// NamedKey identifies a named property by property set and either a numeric id (LID) or a name.
type NamedKey struct {
	Set  uuid.UUID
	ID   uint32
	Name string
}

// LID returns the key of a numeric named property.
func LID(set uuid.UUID, id uint32) NamedKey {
	return NamedKey{Set: set, ID: id}
}

// StringName returns the key of a string named property.
func StringName(set uuid.UUID, name string) NamedKey {
	return NamedKey{Set: set, Name: name}
}

// IsString reports whether the key is a string name.
func (k NamedKey) IsString() bool {
	return k.Name != ""
}

// String formats the key as {set}/id or {set}/name.
func (k NamedKey) String() string {
	if k.IsString() {
		return fmt.Sprintf("{%s}/%s", k.Set, k.Name)
	}

	return fmt.Sprintf("{%s}/%#04x", k.Set, k.ID)
}

// Named properties used by the message model.
var (
	PidLidLocation          = LID(PSETIDAppointment, 0x8208)
	PidLidAppointmentStart  = LID(PSETIDAppointment, 0x820D)
	PidLidAppointmentEnd    = LID(PSETIDAppointment, 0x820E)
	PidLidAppointmentAllDay = LID(PSETIDAppointment, 0x8215)
	PidLidRecurrenceType    = LID(PSETIDAppointment, 0x8231)
	PidLidRecurrencePattern = LID(PSETIDAppointment, 0x8232)
	PidLidTaskStatus        = LID(PSETIDTask, 0x8101)
	PidLidPercentComplete   = LID(PSETIDTask, 0x8102)
	PidLidTaskStartDate     = LID(PSETIDTask, 0x8104)
	PidLidTaskDueDate       = LID(PSETIDTask, 0x8105)
	PidLidTaskDateCompleted = LID(PSETIDTask, 0x810F)
	PidLidTaskComplete      = LID(PSETIDTask, 0x811C)
	PidLidFlagRequest       = LID(PSETIDCommon, 0x8530)
	PidNameKeywords         = StringName(PSPublicStrings, "Keywords")
)

// ErrMalformedNameMap is returned when the named property mapping cannot be parsed.
var ErrMalformedNameMap = eris.New("malformed named property map")

// NameMap maps local named property ids (0x8000 and up) to their keys.
// The zero value is an empty map.
type NameMap struct {
	byID  map[uint16]NamedKey
	byKey map[NamedKey]uint16
}

// Lookup returns the key of a local id.
func (m *NameMap) Lookup(id uint16) (NamedKey, bool) {
	if m == nil || m.byID == nil {
		return NamedKey{}, false
	}

	key, ok := m.byID[id]

	return key, ok
}

// ID returns the local id a key is stored under.
func (m *NameMap) ID(key NamedKey) (uint16, bool) {
	if m == nil || m.byKey == nil {
		return 0, false
	}

	id, ok := m.byKey[key]

	return id, ok
}

// Len returns the number of mapped ids.
func (m *NameMap) Len() int {
	if m == nil {
		return 0
	}

	return len(m.byID)
}

func (m *NameMap) add(id uint16, key NamedKey) {
	if m.byID == nil {
		m.byID = make(map[uint16]NamedKey)
		m.byKey = make(map[NamedKey]uint16)
	}

	m.byID[id] = key

	if _, exists := m.byKey[key]; !exists {
		m.byKey[key] = id
	}
}

// ResolveNames reads the named property mapping of a .msg file.
// A file without the mapping storage yields an empty map. A malformed mapping
// yields an empty map and an error wrapping ErrMalformedNameMap.
func ResolveNames(file *cfb.File) (*NameMap, error) {
	storage := file.Root().Child(NameIDStorage)

	if storage == nil || !storage.IsStorage() {
		return &NameMap{}, nil
	}

	read := func(name string) ([]byte, error) {
		entry := storage.Child(name)

		if entry == nil || !entry.IsStream() {
			return nil, nil
		}

		return file.ReadStream(entry)
	}

	guids, err := read(guidStreamName)

	if err != nil {
		return &NameMap{}, eris.Wrap(ErrMalformedNameMap, err.Error())
	}

	entries, err := read(entryStreamName)

	if err != nil {
		return &NameMap{}, eris.Wrap(ErrMalformedNameMap, err.Error())
	}

	nameData, err := read(stringStreamName)

	if err != nil {
		return &NameMap{}, eris.Wrap(ErrMalformedNameMap, err.Error())
	}

	names := &NameMap{}

	for offset := 0; offset+8 <= len(entries); offset += 8 {
		nameOrID := binary.LittleEndian.Uint32(entries[offset:])
		indexAndKind := binary.LittleEndian.Uint32(entries[offset+4:])
		isString := indexAndKind&1 == 1
		guidIndex := int(indexAndKind>>1) & 0x7FFF
		propertyIndex := indexAndKind >> 16

		if propertyIndex > 0x7FFE {
			return &NameMap{}, eris.Wrapf(ErrMalformedNameMap, "entry %d has property index %d", offset/8, propertyIndex)
		}

		var key NamedKey

		switch {
		case guidIndex == 1:
			key.Set = PSMAPI
		case guidIndex == 2:
			key.Set = PSPublicStrings
		case guidIndex >= 3 && (guidIndex-3)*16+16 <= len(guids):
			key.Set = GUIDFromBytes(guids[(guidIndex-3)*16:])
		default:
			return &NameMap{}, eris.Wrapf(ErrMalformedNameMap, "entry %d references GUID %d of %d", offset/8, guidIndex, len(guids)/16)
		}

		if isString {
			name, err := readName(nameData, nameOrID)

			if err != nil {
				return &NameMap{}, eris.Wrapf(err, "entry %d", offset/8)
			}

			key.Name = name
		} else {
			key.ID = nameOrID
		}

		names.add(NamedThreshold+uint16(propertyIndex), key)
	}

	return names, nil
}

// readName reads a length prefixed UTF-16LE name from the string stream.
func readName(data []byte, offset uint32) (string, error) {
	if uint64(offset)+4 > uint64(len(data)) {
		return "", eris.Wrapf(ErrMalformedNameMap, "name offset %d is outside the %d byte string stream", offset, len(data))
	}

	length := binary.LittleEndian.Uint32(data[offset:])
	end := uint64(offset) + 4 + uint64(length)

	if end > uint64(len(data)) || length == 0 {
		return "", eris.Wrapf(ErrMalformedNameMap, "name at offset %d declares %d bytes", offset, length)
	}

	return DecodeUnicode(data[offset+4 : end]), nil
}
