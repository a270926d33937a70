// Package mapi decodes MAPI property streams stored in .msg compound files.
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package mapi

import "fmt"

// PropertyType is the type code in the low 16 bits of a property tag.
type PropertyType uint16

// Property types.
const (
	PtypUnspecified  PropertyType = 0x0000
	PtypNull         PropertyType = 0x0001
	PtypInteger16    PropertyType = 0x0002
	PtypInteger32    PropertyType = 0x0003
	PtypFloating32   PropertyType = 0x0004
	PtypFloating64   PropertyType = 0x0005
	PtypCurrency     PropertyType = 0x0006
	PtypFloatingTime PropertyType = 0x0007
	PtypErrorCode    PropertyType = 0x000A
	PtypBoolean      PropertyType = 0x000B
	PtypObject       PropertyType = 0x000D
	PtypInteger64    PropertyType = 0x0014
	PtypString8      PropertyType = 0x001E
	PtypString       PropertyType = 0x001F
	PtypTime         PropertyType = 0x0040
	PtypGUID         PropertyType = 0x0048
	PtypBinary       PropertyType = 0x0102

	// MultipleFlag marks a multi-valued type.
	MultipleFlag PropertyType = 0x1000

	PtypMultipleInteger16    = MultipleFlag | PtypInteger16
	PtypMultipleInteger32    = MultipleFlag | PtypInteger32
	PtypMultipleFloating32   = MultipleFlag | PtypFloating32
	PtypMultipleFloating64   = MultipleFlag | PtypFloating64
	PtypMultipleCurrency     = MultipleFlag | PtypCurrency
	PtypMultipleFloatingTime = MultipleFlag | PtypFloatingTime
	PtypMultipleInteger64    = MultipleFlag | PtypInteger64
	PtypMultipleString8      = MultipleFlag | PtypString8
	PtypMultipleString       = MultipleFlag | PtypString
	PtypMultipleTime         = MultipleFlag | PtypTime
	PtypMultipleGUID         = MultipleFlag | PtypGUID
	PtypMultipleBinary       = MultipleFlag | PtypBinary
)

// IsMultiple reports whether the type holds an array.
func (t PropertyType) IsMultiple() bool {
	return t&MultipleFlag != 0
}

// Element returns the scalar type of a multi-valued type.
func (t PropertyType) Element() PropertyType {
	return t &^ MultipleFlag
}

// FixedSize returns the width of a scalar fixed size type, or 0 for variable types.
func (t PropertyType) FixedSize() int {
	switch t {
	case PtypInteger16:
		return 2
	case PtypInteger32, PtypFloating32, PtypErrorCode, PtypBoolean:
		return 4
	case PtypFloating64, PtypCurrency, PtypFloatingTime, PtypInteger64, PtypTime:
		return 8
	case PtypGUID:
		return 16
	default:
		return 0
	}
}

// IsKnown reports whether the decoder understands the type.
func (t PropertyType) IsKnown() bool {
	element := t.Element()

	switch element {
	case PtypInteger16, PtypInteger32, PtypFloating32, PtypFloating64, PtypCurrency,
		PtypFloatingTime, PtypInteger64, PtypString8, PtypString, PtypTime, PtypGUID, PtypBinary:
		return true
	case PtypErrorCode, PtypBoolean, PtypObject, PtypNull:
		return !t.IsMultiple()
	default:
		return false
	}
}

// IsInline reports whether the value lives in the 8 byte slot of the property record.
func (t PropertyType) IsInline() bool {
	if t.IsMultiple() {
		return false
	}

	size := t.FixedSize()

	return size > 0 && size <= 8
}

// String returns the MS-OXCDATA name of the type.
func (t PropertyType) String() string {
	names := map[PropertyType]string{
		PtypUnspecified:  "PtypUnspecified",
		PtypNull:         "PtypNull",
		PtypInteger16:    "PtypInteger16",
		PtypInteger32:    "PtypInteger32",
		PtypFloating32:   "PtypFloating32",
		PtypFloating64:   "PtypFloating64",
		PtypCurrency:     "PtypCurrency",
		PtypFloatingTime: "PtypFloatingTime",
		PtypErrorCode:    "PtypErrorCode",
		PtypBoolean:      "PtypBoolean",
		PtypObject:       "PtypObject",
		PtypInteger64:    "PtypInteger64",
		PtypString8:      "PtypString8",
		PtypString:       "PtypString",
		PtypTime:         "PtypTime",
		PtypGUID:         "PtypGUID",
		PtypBinary:       "PtypBinary",
	}

	if name, ok := names[t.Element()]; ok {
		if t.IsMultiple() {
			return "PtypMultiple" + name[len("Ptyp"):]
		}

		return name
	}

	return fmt.Sprintf("Ptyp(%#04x)", uint16(t))
}

// NamedThreshold is the first property id that is resolved through the name map.
const NamedThreshold uint16 = 0x8000

// Tag is a property tag: the id in the high 16 bits and the type in the low 16 bits.
type Tag uint32

// NewTag builds a tag from an id and a type.
func NewTag(id uint16, propertyType PropertyType) Tag {
	return Tag(uint32(id)<<16 | uint32(propertyType))
}

// ID returns the property id.
func (t Tag) ID() uint16 {
	return uint16(t >> 16)
}

// Type returns the property type.
func (t Tag) Type() PropertyType {
	return PropertyType(t & 0xFFFF)
}

// IsNamed reports whether the id must be resolved through the name map.
func (t Tag) IsNamed() bool {
	return t.ID() >= NamedThreshold
}

// StreamName returns the name of the side stream holding a variable size value.
func (t Tag) StreamName() string {
	return fmt.Sprintf("%s%08X", substgPrefix, uint32(t))
}

// String formats the tag as hex.
func (t Tag) String() string {
	return fmt.Sprintf("%08X", uint32(t))
}

// StorageKind selects the header size of a property stream.
type StorageKind int

// Storage kinds.
const (
	// TopLevelMessage is the root storage of a .msg file.
	TopLevelMessage StorageKind = iota
	// EmbeddedMessage is a message stored inside an attachment.
	EmbeddedMessage
	// AttachmentStorage is a __attach_version1.0_ storage.
	AttachmentStorage
	// RecipientStorage is a __recip_version1.0_ storage.
	RecipientStorage
)

// HeaderSize returns the number of bytes before the first property record.
func (k StorageKind) HeaderSize() int {
	switch k {
	case TopLevelMessage:
		return 32
	case EmbeddedMessage:
		return 24
	default:
		return 8
	}
}

// String returns the name of the storage kind.
func (k StorageKind) String() string {
	switch k {
	case TopLevelMessage:
		return "message"
	case EmbeddedMessage:
		return "embedded message"
	case AttachmentStorage:
		return "attachment"
	case RecipientStorage:
		return "recipient"
	default:
		return "unknown"
	}
}

// Stream and storage names.
const (
	PropertiesStream   = "__properties_version1.0"
	NameIDStorage      = "__nameid_version1.0"
	RecipientPrefix    = "__recip_version1.0_#"
	AttachmentPrefix   = "__attach_version1.0_#"
	substgPrefix       = "__substg1.0_"
	guidStreamName     = "__substg1.0_00020102"
	entryStreamName    = "__substg1.0_00030102"
	stringStreamName   = "__substg1.0_00040102"
	propertyRecordSize = 16
)
