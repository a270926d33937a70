// Package mapi
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package mapi

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mooijtech/go-msg-export/pkg/cfb"
)

// Value is a decoded property value. Exactly one group of fields is set,
// selected by Type. Use the accessors, which report whether the value has
// the requested shape.
type Value struct {
	Tag   Tag
	Type  PropertyType
	Flags uint32

	// Unrecognized is set for type codes the decoder does not understand.
	// Raw then holds the 8 byte slot of the property record.
	Unrecognized bool
	Raw          []byte

	integer int64
	float   float64
	text    string
	bytes   []byte
	guid    uuid.UUID
	object  *cfb.Entry

	integers []int64
	floats   []float64
	texts    []string
	blobs    [][]byte
	guids    []uuid.UUID
}

// Int returns integer, boolean, error code and currency values.
// Currency is returned in its scaled form (units of 1/10000).
func (v *Value) Int() (int64, bool) {
	if v == nil {
		return 0, false
	}

	switch v.Type {
	case PtypInteger16, PtypInteger32, PtypInteger64, PtypErrorCode, PtypBoolean, PtypCurrency:
		return v.integer, true
	default:
		return 0, false
	}
}

// Bool returns boolean values. Non-zero integers are true.
func (v *Value) Bool() (bool, bool) {
	value, ok := v.Int()

	return value != 0, ok
}

// Float returns floating point, currency and floating time values.
func (v *Value) Float() (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch v.Type {
	case PtypFloating32, PtypFloating64, PtypFloatingTime:
		return v.float, true
	case PtypCurrency:
		return float64(v.integer) / 10000, true
	default:
		return 0, false
	}
}

// Time returns FILETIME and floating time values. Zero FILETIMEs are reported as absent.
func (v *Value) Time() (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}

	switch v.Type {
	case PtypTime:
		if v.integer == 0 {
			return time.Time{}, false
		}

		return FiletimeToTime(v.integer), true
	case PtypFloatingTime:
		return floatingTime(v.float), true
	default:
		return time.Time{}, false
	}
}

// Text returns string values.
func (v *Value) Text() (string, bool) {
	if v == nil || (v.Type != PtypString && v.Type != PtypString8) {
		return "", false
	}

	return v.text, true
}

// Bytes returns binary values.
func (v *Value) Bytes() ([]byte, bool) {
	if v == nil || v.Type != PtypBinary {
		return nil, false
	}

	return v.bytes, true
}

// GUID returns GUID values.
func (v *Value) GUID() (uuid.UUID, bool) {
	if v == nil || v.Type != PtypGUID {
		return uuid.Nil, false
	}

	return v.guid, true
}

// Object returns the sub-storage of an object value.
func (v *Value) Object() (*cfb.Entry, bool) {
	if v == nil || v.Type != PtypObject || v.object == nil {
		return nil, false
	}

	return v.object, true
}

// Ints returns multi-valued integer values.
func (v *Value) Ints() ([]int64, bool) {
	if v == nil {
		return nil, false
	}

	switch v.Type {
	case PtypMultipleInteger16, PtypMultipleInteger32, PtypMultipleInteger64, PtypMultipleCurrency:
		return v.integers, true
	default:
		return nil, false
	}
}

// Floats returns multi-valued floating point values.
func (v *Value) Floats() ([]float64, bool) {
	if v == nil {
		return nil, false
	}

	switch v.Type {
	case PtypMultipleFloating32, PtypMultipleFloating64, PtypMultipleFloatingTime:
		return v.floats, true
	default:
		return nil, false
	}
}

// Times returns multi-valued FILETIME values.
func (v *Value) Times() ([]time.Time, bool) {
	if v == nil || v.Type != PtypMultipleTime {
		return nil, false
	}

	times := make([]time.Time, len(v.integers))

	for i, ticks := range v.integers {
		times[i] = FiletimeToTime(ticks)
	}

	return times, true
}

// Texts returns multi-valued string values.
func (v *Value) Texts() ([]string, bool) {
	if v == nil || (v.Type != PtypMultipleString && v.Type != PtypMultipleString8) {
		return nil, false
	}

	return v.texts, true
}

// BytesList returns multi-valued binary values.
func (v *Value) BytesList() ([][]byte, bool) {
	if v == nil || v.Type != PtypMultipleBinary {
		return nil, false
	}

	return v.blobs, true
}

// GUIDs returns multi-valued GUID values.
func (v *Value) GUIDs() ([]uuid.UUID, bool) {
	if v == nil || v.Type != PtypMultipleGUID {
		return nil, false
	}

	return v.guids, true
}

// decodeFixed decodes one fixed size scalar into v.
func (v *Value) decodeFixed(data []byte) {
	switch v.Type {
	case PtypInteger16:
		v.integer = int64(int16(binary.LittleEndian.Uint16(data)))
	case PtypInteger32, PtypErrorCode:
		v.integer = int64(int32(binary.LittleEndian.Uint32(data)))
	case PtypBoolean:
		if binary.LittleEndian.Uint16(data) != 0 {
			v.integer = 1
		}
	case PtypFloating32:
		v.float = float64(math.Float32frombits(binary.LittleEndian.Uint32(data)))
	case PtypFloating64, PtypFloatingTime:
		v.float = math.Float64frombits(binary.LittleEndian.Uint64(data))
	case PtypCurrency, PtypInteger64, PtypTime:
		v.integer = int64(binary.LittleEndian.Uint64(data))
	case PtypGUID:
		v.guid = GUIDFromBytes(data)
	}
}

// decodeFixedArray decodes a packed array of fixed size elements.
func (v *Value) decodeFixedArray(data []byte) {
	element := v.Type.Element()
	size := element.FixedSize()
	count := len(data) / size

	for i := 0; i < count; i++ {
		scalar := Value{Type: element}
		scalar.decodeFixed(data[i*size:])

		switch element {
		case PtypFloating32, PtypFloating64, PtypFloatingTime:
			v.floats = append(v.floats, scalar.float)
		case PtypGUID:
			v.guids = append(v.guids, scalar.guid)
		default:
			v.integers = append(v.integers, scalar.integer)
		}
	}
}

const (
	filetimeTicksPerSecond = 10000000
	filetimeUnixOffset     = 11644473600
)

// FiletimeToTime converts 100 nanosecond ticks since 1601-01-01 UTC.
func FiletimeToTime(ticks int64) time.Time {
	seconds := ticks/filetimeTicksPerSecond - filetimeUnixOffset
	nanoseconds := (ticks % filetimeTicksPerSecond) * 100

	return time.Unix(seconds, nanoseconds).UTC()
}

// TimeToFiletime converts t to 100 nanosecond ticks since 1601-01-01 UTC.
func TimeToFiletime(t time.Time) int64 {
	return (t.Unix()+filetimeUnixOffset)*filetimeTicksPerSecond + int64(t.Nanosecond()/100)
}

var oleEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// floatingTime converts an OLE automation date (days since 1899-12-30).
func floatingTime(days float64) time.Time {
	return oleEpoch.Add(time.Duration(days * float64(24*time.Hour)))
}

// GUIDFromBytes converts a GUID in its little-endian MAPI layout.
func GUIDFromBytes(data []byte) uuid.UUID {
	var id uuid.UUID

	if len(data) < 16 {
		return id
	}

	id[0], id[1], id[2], id[3] = data[3], data[2], data[1], data[0]
	id[4], id[5] = data[5], data[4]
	id[6], id[7] = data[7], data[6]
	copy(id[8:], data[8:16])

	return id
}

// GUIDToBytes returns the little-endian MAPI layout of id.
func GUIDToBytes(id uuid.UUID) []byte {
	data := make([]byte, 16)
	data[0], data[1], data[2], data[3] = id[3], id[2], id[1], id[0]
	data[4], data[5] = id[5], id[4]
	data[6], data[7] = id[7], id[6]
	copy(data[8:], id[8:])

	return data
}
