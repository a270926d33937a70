// Package mapi
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package mapi

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/mooijtech/go-msg-export/pkg/cfb"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// ErrPropertyStreamMissing is returned when a storage has no property stream.
var ErrPropertyStreamMissing = eris.New("property stream missing")

// Decoder decodes the property streams of storages in one file.
type Decoder struct {
	File  *cfb.File
	Names *NameMap
	// Codepage is used for PtypString8 values when the storage declares none.
	Codepage int
	Logger   logrus.FieldLogger
}

// record is one 16 byte entry of a property stream.
type record struct {
	tag   Tag
	flags uint32
	slot  []byte
}

// Decode reads the property stream of storage and every side stream it references.
func (d *Decoder) Decode(storage *cfb.Entry, kind StorageKind) (*Properties, error) {
	logger := d.logger().WithField("storage", storage.Name)
	stream := storage.Child(PropertiesStream)

	if stream == nil || !stream.IsStream() {
		return nil, eris.Wrapf(ErrPropertyStreamMissing, "%s storage %q", kind, storage.Name)
	}

	data, err := d.File.ReadStream(stream)

	if err != nil {
		return nil, eris.Wrapf(err, "%s storage %q", kind, storage.Name)
	}

	headerSize := kind.HeaderSize()

	if len(data) < headerSize {
		logger.Warnf("Property stream is %d bytes, shorter than the %d byte %s header", len(data), headerSize, kind)
		headerSize = len(data)
	}

	var records []record

	for offset := headerSize; offset+propertyRecordSize <= len(data); offset += propertyRecordSize {
		records = append(records, record{
			tag:   Tag(binary.LittleEndian.Uint32(data[offset:])),
			flags: binary.LittleEndian.Uint32(data[offset+4:]),
			slot:  data[offset+8 : offset+16],
		})
	}

	if trailing := (len(data) - headerSize) % propertyRecordSize; trailing != 0 {
		logger.Debugf("Ignoring %d trailing bytes in the property stream", trailing)
	}

	properties := &Properties{
		values:   make(map[Tag]*Value, len(records)),
		byID:     make(map[uint16]*Value, len(records)),
		names:    d.Names,
		Codepage: d.codepage(records),
	}

	for _, r := range records {
		value, err := d.decodeRecord(storage, r, properties.Codepage, logger)

		if err != nil {
			return nil, eris.Wrapf(err, "%s storage %q", kind, storage.Name)
		}

		if value != nil {
			properties.add(value)
		}
	}

	return properties, nil
}

func (d *Decoder) logger() logrus.FieldLogger {
	if d.Logger != nil {
		return d.Logger
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	return discard
}

// codepage finds the code page of the storage from its inline records.
func (d *Decoder) codepage(records []record) int {
	for _, id := range []uint16{PidTagMessageCodepage, PidTagInternetCodepage} {
		for _, r := range records {
			if r.tag.ID() == id && r.tag.Type() == PtypInteger32 {
				if codepage := int(binary.LittleEndian.Uint32(r.slot)); codepage > 0 {
					return codepage
				}
			}
		}
	}

	if d.Codepage > 0 {
		return d.Codepage
	}

	return DefaultCodepage
}

// decodeRecord decodes one property. A nil value without an error means the value is absent.
func (d *Decoder) decodeRecord(storage *cfb.Entry, r record, codepage int, logger logrus.FieldLogger) (*Value, error) {
	propertyType := r.tag.Type()
	value := &Value{Tag: r.tag, Type: propertyType, Flags: r.flags}

	switch {
	case !propertyType.IsKnown():
		logger.WithField("tag", r.tag.String()).Debugf("Keeping property with unrecognized type %s as raw bytes", propertyType)
		value.Unrecognized = true
		value.Raw = append([]byte(nil), r.slot...)

		return value, nil
	case propertyType == PtypNull:
		return value, nil
	case propertyType.IsInline():
		value.decodeFixed(r.slot)

		return value, nil
	case propertyType == PtypObject:
		value.object = storage.Child(r.tag.StreamName())

		if value.object == nil {
			logger.WithField("tag", r.tag.String()).Debug("Object property has no sub-storage")
			return nil, nil
		}

		return value, nil
	}

	if propertyType.IsMultiple() && propertyType.Element().FixedSize() == 0 {
		return d.decodeVariableArray(storage, value, codepage, logger)
	}

	data, found, err := d.readSideStream(storage, r.tag.StreamName())

	if err != nil || !found {
		if !found && err == nil {
			logger.WithField("tag", r.tag.String()).Debug("Side stream missing, property absent")
		}

		return nil, err
	}

	switch {
	case propertyType.IsMultiple():
		value.decodeFixedArray(data)
	case propertyType == PtypString:
		value.text = DecodeUnicode(data)
	case propertyType == PtypString8:
		value.text = DecodeString8(data, codepage)
	case propertyType == PtypBinary:
		value.bytes = data
	case propertyType == PtypGUID:
		if len(data) < 16 {
			logger.WithField("tag", r.tag.String()).Debugf("GUID stream is %d bytes", len(data))
			return nil, nil
		}

		value.decodeFixed(data)
	}

	return value, nil
}

// decodeVariableArray reads the length stream of a multi-valued string or binary
// property and then one stream per element.
func (d *Decoder) decodeVariableArray(storage *cfb.Entry, value *Value, codepage int, logger logrus.FieldLogger) (*Value, error) {
	lengths, found, err := d.readSideStream(storage, value.Tag.StreamName())

	if err != nil || !found {
		return nil, err
	}

	entrySize := 4

	if value.Type.Element() == PtypBinary {
		entrySize = 8
	}

	count := len(lengths) / entrySize

	for i := 0; i < count; i++ {
		name := fmt.Sprintf("%s-%08X", value.Tag.StreamName(), i)
		data, found, err := d.readSideStream(storage, name)

		if err != nil {
			return nil, err
		}

		if !found {
			logger.WithField("tag", value.Tag.String()).Debugf("Element %d of %d is missing", i, count)
		}

		switch value.Type.Element() {
		case PtypString:
			value.texts = append(value.texts, DecodeUnicode(data))
		case PtypString8:
			value.texts = append(value.texts, DecodeString8(data, codepage))
		case PtypBinary:
			value.blobs = append(value.blobs, data)
		}
	}

	return value, nil
}

// readSideStream reads a stream child of storage. found is false when it does not exist.
func (d *Decoder) readSideStream(storage *cfb.Entry, name string) ([]byte, bool, error) {
	entry := storage.Child(name)

	if entry == nil || !entry.IsStream() {
		return nil, false, nil
	}

	data, err := d.File.ReadStream(entry)

	if err != nil {
		return nil, true, err
	}

	return data, true, nil
}

// Properties holds the decoded properties of one storage.
type Properties struct {
	// Codepage is the code page used for PtypString8 values of this storage.
	Codepage int

	values map[Tag]*Value
	byID   map[uint16]*Value
	names  *NameMap
}

func (p *Properties) add(value *Value) {
	p.values[value.Tag] = value

	// Prefer the first recognized value for an id.
	if existing, ok := p.byID[value.Tag.ID()]; !ok || (existing.Unrecognized && !value.Unrecognized) {
		p.byID[value.Tag.ID()] = value
	}
}

// Len returns the number of decoded properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}

	return len(p.values)
}

// Tag returns the value stored under an exact tag.
func (p *Properties) Tag(tag Tag) (*Value, bool) {
	if p == nil {
		return nil, false
	}

	value, ok := p.values[tag]

	return value, ok
}

// Get returns the value of a property id, whatever its type.
func (p *Properties) Get(id uint16) (*Value, bool) {
	if p == nil {
		return nil, false
	}

	value, ok := p.byID[id]

	return value, ok
}

// All returns every value ordered by tag.
func (p *Properties) All() []*Value {
	if p == nil {
		return nil
	}

	values := make([]*Value, 0, len(p.values))

	for _, value := range p.values {
		values = append(values, value)
	}

	sort.Slice(values, func(i, j int) bool {
		return values[i].Tag < values[j].Tag
	})

	return values
}

// Names returns the name map used to resolve named properties.
func (p *Properties) Names() *NameMap {
	if p == nil {
		return nil
	}

	return p.names
}

// Named returns the value of a named property. Properties without a mapping are absent.
func (p *Properties) Named(key NamedKey) (*Value, bool) {
	if p == nil {
		return nil, false
	}

	id, ok := p.names.ID(key)

	if !ok {
		return nil, false
	}

	return p.Get(id)
}

// NamedKeyOf returns the key of a named property tag.
func (p *Properties) NamedKeyOf(tag Tag) (NamedKey, bool) {
	if p == nil || !tag.IsNamed() {
		return NamedKey{}, false
	}

	return p.names.Lookup(tag.ID())
}

// Text returns a string property, or "" when absent.
func (p *Properties) Text(id uint16) string {
	value, _ := p.Get(id)
	text, _ := value.Text()

	return text
}

// Int returns an integer property.
func (p *Properties) Int(id uint16) (int64, bool) {
	value, _ := p.Get(id)

	return value.Int()
}

// Bool returns a boolean property.
func (p *Properties) Bool(id uint16) (bool, bool) {
	value, _ := p.Get(id)

	return value.Bool()
}

// Time returns a time property.
func (p *Properties) Time(id uint16) (time.Time, bool) {
	value, _ := p.Get(id)

	return value.Time()
}

// Bytes returns a binary property.
func (p *Properties) Bytes(id uint16) ([]byte, bool) {
	value, _ := p.Get(id)

	return value.Bytes()
}
