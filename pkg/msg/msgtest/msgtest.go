// Package msgtest builds .msg files in memory for tests.
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgtest

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/mooijtech/go-msg-export/pkg/cfb/cfbtest"
	"github.com/mooijtech/go-msg-export/pkg/mapi"
)

// Prop is one property to be written.
type Prop struct {
	ID   uint16
	Type mapi.PropertyType
	// Named replaces ID with the local id assigned to the key in the name map.
	Named *mapi.NamedKey
	// Slot holds the 8 byte value of inline types.
	Slot []byte
	// Data holds the side stream of variable types.
	Data []byte
	// Elements holds the element streams of multi-valued strings and binaries.
	Elements [][]byte
}

// Recipient is a __recip_version1.0_ storage.
type Recipient struct {
	Props             []Prop
	MissingProperties bool
}

// Attachment is a __attach_version1.0_ storage.
type Attachment struct {
	Props []Prop
	// Embedded adds a nested message and sets the attach method to 5.
	Embedded *Message
	// OmitObjectRecord leaves the PtypObject record of Embedded out of the property stream.
	OmitObjectRecord  bool
	MissingProperties bool
	// Extra nodes are added to the attachment storage as is.
	Extra []*cfbtest.Node
}

// Message is a message storage.
type Message struct {
	Props       []Prop
	Recipients  []Recipient
	Attachments []Attachment
	// ReverseChildren writes recipient and attachment storages in reverse index order.
	ReverseChildren bool
	// OmitNameMap leaves out __nameid_version1.0 even when named properties exist.
	OmitNameMap bool
	// Extra nodes are added to the message storage as is.
	Extra []*cfbtest.Node
}

// Bytes returns the message as a .msg file with 512 byte sectors.
func (m *Message) Bytes() []byte {
	return m.BytesWithOptions(cfbtest.Options{SectorShift: 9})
}

// BytesWithOptions returns the message as a .msg file.
func (m *Message) BytesWithOptions(options cfbtest.Options) []byte {
	names := newNameTable()
	names.collect(m)

	children := m.nodes(mapi.TopLevelMessage, names)

	if !m.OmitNameMap {
		children = append(children, names.storage())
	}

	return cfbtest.BuildWithOptions(options, children...)
}

func (m *Message) nodes(kind mapi.StorageKind, names *nameTable) []*cfbtest.Node {
	var children []*cfbtest.Node

	header := make([]byte, kind.HeaderSize())

	if kind == mapi.TopLevelMessage || kind == mapi.EmbeddedMessage {
		binary.LittleEndian.PutUint32(header[8:], uint32(len(m.Recipients)))
		binary.LittleEndian.PutUint32(header[12:], uint32(len(m.Attachments)))
		binary.LittleEndian.PutUint32(header[16:], uint32(len(m.Recipients)))
		binary.LittleEndian.PutUint32(header[20:], uint32(len(m.Attachments)))
	}

	children = append(children, propertyNodes(header, m.Props, names)...)

	var sub []*cfbtest.Node

	for i, recipient := range m.Recipients {
		storage := cfbtest.Storage(fmt.Sprintf("%s%08X", mapi.RecipientPrefix, i))

		if !recipient.MissingProperties {
			storage.Add(propertyNodes(make([]byte, 8), recipient.Props, names)...)
		}

		sub = append(sub, storage)
	}

	for i, attachment := range m.Attachments {
		storage := cfbtest.Storage(fmt.Sprintf("%s%08X", mapi.AttachmentPrefix, i))
		props := attachment.Props

		if attachment.Embedded != nil {
			props = append(append([]Prop(nil), props...), Int32(mapi.PidTagAttachMethod, mapi.AttachEmbeddedMessage))

			if !attachment.OmitObjectRecord {
				props = append(props, Prop{ID: mapi.PidTagAttachDataBinary, Type: mapi.PtypObject})
			}

			embedded := cfbtest.Storage(mapi.NewTag(mapi.PidTagAttachDataBinary, mapi.PtypObject).StreamName(),
				attachment.Embedded.nodes(mapi.EmbeddedMessage, names)...)
			storage.Add(embedded)
		}

		if !attachment.MissingProperties {
			storage.Add(propertyNodes(make([]byte, 8), props, names)...)
		}

		storage.Add(attachment.Extra...)
		sub = append(sub, storage)
	}

	if m.ReverseChildren {
		for i, j := 0, len(sub)-1; i < j; i, j = i+1, j-1 {
			sub[i], sub[j] = sub[j], sub[i]
		}
	}

	children = append(children, sub...)
	children = append(children, m.Extra...)

	return children
}

// propertyNodes writes the property stream and the side streams of props.
func propertyNodes(header []byte, props []Prop, names *nameTable) []*cfbtest.Node {
	stream := append([]byte(nil), header...)

	var sides []*cfbtest.Node

	for _, prop := range props {
		id := prop.ID

		if prop.Named != nil {
			id = names.id(*prop.Named)
		}

		tag := mapi.NewTag(id, prop.Type)
		record := make([]byte, 16)
		binary.LittleEndian.PutUint32(record[0:], uint32(tag))
		binary.LittleEndian.PutUint32(record[4:], 0x6)

		switch {
		case prop.Slot != nil:
			copy(record[8:], prop.Slot)
		case prop.Type == mapi.PtypObject:
			binary.LittleEndian.PutUint32(record[8:], 0xFFFFFFFF)
		case prop.Elements != nil:
			entrySize := 4

			if prop.Type.Element() == mapi.PtypBinary {
				entrySize = 8
			}

			lengths := make([]byte, len(prop.Elements)*entrySize)

			for i, element := range prop.Elements {
				binary.LittleEndian.PutUint32(lengths[i*entrySize:], uint32(len(element)))
				sides = append(sides, cfbtest.Stream(fmt.Sprintf("%s-%08X", tag.StreamName(), i), element))
			}

			binary.LittleEndian.PutUint32(record[8:], uint32(len(lengths)))
			sides = append(sides, cfbtest.Stream(tag.StreamName(), lengths))
		default:
			binary.LittleEndian.PutUint32(record[8:], uint32(len(prop.Data)))
			sides = append(sides, cfbtest.Stream(tag.StreamName(), prop.Data))
		}

		stream = append(stream, record...)
	}

	return append([]*cfbtest.Node{cfbtest.Stream(mapi.PropertiesStream, stream)}, sides...)
}

// nameTable assigns local ids to named property keys in order of first use.
type nameTable struct {
	keys  []mapi.NamedKey
	index map[mapi.NamedKey]int
}

func newNameTable() *nameTable {
	return &nameTable{index: make(map[mapi.NamedKey]int)}
}

func (n *nameTable) collect(m *Message) {
	add := func(props []Prop) {
		for _, prop := range props {
			if prop.Named != nil {
				n.id(*prop.Named)
			}
		}
	}

	add(m.Props)

	for _, recipient := range m.Recipients {
		add(recipient.Props)
	}

	for _, attachment := range m.Attachments {
		add(attachment.Props)

		if attachment.Embedded != nil {
			n.collect(attachment.Embedded)
		}
	}
}

func (n *nameTable) id(key mapi.NamedKey) uint16 {
	index, ok := n.index[key]

	if !ok {
		index = len(n.keys)
		n.index[key] = index
		n.keys = append(n.keys, key)
	}

	return mapi.NamedThreshold + uint16(index)
}

// storage writes __nameid_version1.0.
func (n *nameTable) storage() *cfbtest.Node {
	var guids, entries, nameStream []byte

	guidIndex := make(map[uuid.UUID]int)

	for i, key := range n.keys {
		var set int

		switch key.Set {
		case mapi.PSMAPI:
			set = 1
		case mapi.PSPublicStrings:
			set = 2
		default:
			index, ok := guidIndex[key.Set]

			if !ok {
				index = len(guids) / 16
				guidIndex[key.Set] = index
				guids = append(guids, mapi.GUIDToBytes(key.Set)...)
			}

			set = 3 + index
		}

		entry := make([]byte, 8)
		kind := uint32(0)

		if key.IsString() {
			kind = 1
			binary.LittleEndian.PutUint32(entry, uint32(len(nameStream)))
			name := unicodeBytes(key.Name, false)
			length := make([]byte, 4)
			binary.LittleEndian.PutUint32(length, uint32(len(name)))
			nameStream = append(nameStream, length...)
			nameStream = append(nameStream, name...)

			for len(nameStream)%4 != 0 {
				nameStream = append(nameStream, 0)
			}
		} else {
			binary.LittleEndian.PutUint32(entry, key.ID)
		}

		binary.LittleEndian.PutUint32(entry[4:], uint32(i)<<16|uint32(set)<<1|kind)
		entries = append(entries, entry...)
	}

	return cfbtest.Storage(mapi.NameIDStorage,
		cfbtest.Stream("__substg1.0_00020102", guids),
		cfbtest.Stream("__substg1.0_00030102", entries),
		cfbtest.Stream("__substg1.0_00040102", nameStream),
	)
}

func unicodeBytes(s string, terminate bool) []byte {
	units := utf16.Encode([]rune(s))

	if terminate {
		units = append(units, 0)
	}

	data := make([]byte, len(units)*2)

	for i, unit := range units {
		binary.LittleEndian.PutUint16(data[i*2:], unit)
	}

	return data
}

func slot(size int, put func([]byte)) []byte {
	data := make([]byte, 8)
	put(data[:size])

	return data
}

// String returns a PtypString property.
func String(id uint16, value string) Prop {
	return Prop{ID: id, Type: mapi.PtypString, Data: unicodeBytes(value, true)}
}

// String8 returns a PtypString8 property holding already encoded bytes.
func String8(id uint16, value []byte) Prop {
	return Prop{ID: id, Type: mapi.PtypString8, Data: append(append([]byte(nil), value...), 0)}
}

// Binary returns a PtypBinary property.
func Binary(id uint16, value []byte) Prop {
	return Prop{ID: id, Type: mapi.PtypBinary, Data: value}
}

// Int16 returns a PtypInteger16 property.
func Int16(id uint16, value int16) Prop {
	return Prop{ID: id, Type: mapi.PtypInteger16, Slot: slot(2, func(b []byte) {
		binary.LittleEndian.PutUint16(b, uint16(value))
	})}
}

// Int32 returns a PtypInteger32 property.
func Int32(id uint16, value int32) Prop {
	return Prop{ID: id, Type: mapi.PtypInteger32, Slot: slot(4, func(b []byte) {
		binary.LittleEndian.PutUint32(b, uint32(value))
	})}
}

// Int64 returns a PtypInteger64 property.
func Int64(id uint16, value int64) Prop {
	return Prop{ID: id, Type: mapi.PtypInteger64, Slot: slot(8, func(b []byte) {
		binary.LittleEndian.PutUint64(b, uint64(value))
	})}
}

// Float64 returns a PtypFloating64 property.
func Float64(id uint16, value float64) Prop {
	return Prop{ID: id, Type: mapi.PtypFloating64, Slot: slot(8, func(b []byte) {
		binary.LittleEndian.PutUint64(b, math.Float64bits(value))
	})}
}

// Bool returns a PtypBoolean property.
func Bool(id uint16, value bool) Prop {
	return Prop{ID: id, Type: mapi.PtypBoolean, Slot: slot(2, func(b []byte) {
		if value {
			b[0] = 1
		}
	})}
}

// Time returns a PtypTime property.
func Time(id uint16, value time.Time) Prop {
	return Prop{ID: id, Type: mapi.PtypTime, Slot: slot(8, func(b []byte) {
		binary.LittleEndian.PutUint64(b, uint64(mapi.TimeToFiletime(value)))
	})}
}

// GUID returns a PtypGUID property.
func GUID(id uint16, value uuid.UUID) Prop {
	return Prop{ID: id, Type: mapi.PtypGUID, Data: mapi.GUIDToBytes(value)}
}

// Strings returns a PtypMultipleString property.
func Strings(id uint16, values ...string) Prop {
	elements := make([][]byte, len(values))

	for i, value := range values {
		elements[i] = unicodeBytes(value, true)
	}

	return Prop{ID: id, Type: mapi.PtypMultipleString, Elements: elements}
}

// BinaryList returns a PtypMultipleBinary property.
func BinaryList(id uint16, values ...[]byte) Prop {
	return Prop{ID: id, Type: mapi.PtypMultipleBinary, Elements: values}
}

// Int32s returns a PtypMultipleInteger32 property.
func Int32s(id uint16, values ...int32) Prop {
	data := make([]byte, len(values)*4)

	for i, value := range values {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(value))
	}

	return Prop{ID: id, Type: mapi.PtypMultipleInteger32, Data: data}
}

// Raw returns a property with an arbitrary type code and slot.
func Raw(id uint16, propertyType mapi.PropertyType, value []byte) Prop {
	return Prop{ID: id, Type: propertyType, Slot: append(make([]byte, 0, 8), value...)}
}

// Named turns prop into a named property stored under key.
func Named(key mapi.NamedKey, prop Prop) Prop {
	prop.Named = &key

	return prop
}
