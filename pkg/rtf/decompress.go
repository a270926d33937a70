// Package rtf decompresses the compressed RTF body of Outlook messages (PidTagRtfCompressed).
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package rtf

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/rotisserie/eris"
)

// Compression types in the header.
const (
	compressed   = 0x75465A4C // "LZFu"
	uncompressed = 0x414C454D // "MELA"
)

const (
	headerSize     = 16
	dictionarySize = 4096
)

// The dictionary is preloaded with common RTF tokens; writing starts after them.
var initialDictionary = []byte(
	"{\\rtf1\\ansi\\mac\\deff0\\deftab720{\\fonttbl;}" +
		"{\\f0\\fnil \\froman \\fswiss \\fmodern \\fscript " +
		"\\fdecor MS Sans SerifSymbolArialTimes New Roman" +
		"Courier{\\colortbl\\red0\\green0\\blue0\r\n\\par " +
		"\\pard\\plain\\f0\\fs20\\b\\i\\u\\tab\\tx",
)

var (
	// ErrInvalid is returned when the data is not compressed RTF.
	ErrInvalid = eris.New("invalid compressed RTF")
	// ErrChecksum is returned by Verify when the CRC does not match the payload.
	ErrChecksum = eris.New("compressed RTF checksum mismatch")
)

// Header is the 16 byte header of compressed RTF.
type Header struct {
	CompressedSize uint32
	RawSize        uint32
	Type           uint32
	CRC            uint32
}

// IsCompressed reports whether the payload is LZFu compressed.
func (h Header) IsCompressed() bool {
	return h.Type == compressed
}

// ParseHeader reads the header of compressed RTF.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, eris.Wrapf(ErrInvalid, "%d bytes is shorter than the header", len(data))
	}

	h := Header{
		CompressedSize: binary.LittleEndian.Uint32(data[0:]),
		RawSize:        binary.LittleEndian.Uint32(data[4:]),
		Type:           binary.LittleEndian.Uint32(data[8:]),
		CRC:            binary.LittleEndian.Uint32(data[12:]),
	}

	if h.Type != compressed && h.Type != uncompressed {
		return Header{}, eris.Wrapf(ErrInvalid, "unknown compression type %#08x", h.Type)
	}

	return h, nil
}

// Decompress returns the RTF held by data. The output never exceeds the raw
// size declared in the header, and LZFu output is further bounded by what the
// payload can expand to.
func Decompress(data []byte) ([]byte, error) {
	h, err := ParseHeader(data)

	if err != nil {
		return nil, err
	}

	payload := data[headerSize:]

	if end := uint64(h.CompressedSize) + 4; end >= headerSize && end < uint64(len(data)) {
		payload = data[headerSize:end]
	}

	if !h.IsCompressed() {
		if uint64(h.RawSize) > uint64(len(payload)) {
			return nil, eris.Wrapf(ErrInvalid, "uncompressed RTF declares %d bytes but holds %d", h.RawSize, len(payload))
		}

		return append([]byte(nil), payload[:h.RawSize]...), nil
	}

	return decompressLZFu(payload, h.RawSize)
}

// Verify checks the CRC of an LZFu payload.
func Verify(data []byte) error {
	h, err := ParseHeader(data)

	if err != nil {
		return err
	}

	if !h.IsCompressed() {
		return nil
	}

	end := uint64(h.CompressedSize) + 4

	if end < headerSize || end > uint64(len(data)) {
		return eris.Wrapf(ErrInvalid, "compressed size %d does not fit the %d byte input", h.CompressedSize, len(data))
	}

	if sum := Checksum(data[headerSize:end]); sum != h.CRC {
		return eris.Wrapf(ErrChecksum, "header CRC %#08x, payload CRC %#08x", h.CRC, sum)
	}

	return nil
}

// Checksum computes the CRC used by compressed RTF: CRC-32 without pre and post inversion.
func Checksum(payload []byte) uint32 {
	return ^crc32.Update(0xFFFFFFFF, crc32.IEEETable, payload)
}

// decompressLZFu expands the control byte / reference stream.
func decompressLZFu(input []byte, rawSize uint32) ([]byte, error) {
	// Each input byte expands to at most 17 output bytes.
	limit := uint64(rawSize)

	if bound := uint64(len(input)) * 17; limit > bound {
		limit = bound
	}

	dictionary := make([]byte, dictionarySize)
	copy(dictionary, initialDictionary)
	write := len(initialDictionary)
	out := make([]byte, 0, limit)
	position := 0

	for position < len(input) {
		control := input[position]
		position++

		for bit := 0; bit < 8 && position < len(input); bit++ {
			if uint64(len(out)) >= limit {
				return out, nil
			}

			if control&(1<<bit) == 0 {
				b := input[position]
				position++
				out = append(out, b)
				dictionary[write] = b
				write = (write + 1) % dictionarySize

				continue
			}

			if position+1 >= len(input) {
				return nil, eris.Wrapf(ErrInvalid, "reference at offset %d is cut off", position)
			}

			reference := int(binary.BigEndian.Uint16(input[position:]))
			position += 2
			offset := reference >> 4
			length := reference&0xF + 2

			if offset == write {
				return out, nil
			}

			for i := 0; i < length && uint64(len(out)) < limit; i++ {
				b := dictionary[(offset+i)%dictionarySize]
				out = append(out, b)
				dictionary[write] = b
				write = (write + 1) % dictionarySize
			}
		}
	}

	return out, nil
}
