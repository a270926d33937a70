// Package cfb
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package cfb

import (
	"bytes"
	"encoding/binary"

	"github.com/rotisserie/eris"
)

// Special sector ids.
const (
	MaxRegularSector uint32 = 0xFFFFFFFA
	DIFATSector      uint32 = 0xFFFFFFFC
	FATSector        uint32 = 0xFFFFFFFD
	EndOfChain       uint32 = 0xFFFFFFFE
	FreeSector       uint32 = 0xFFFFFFFF
)

// NoStream marks an absent sibling or child link in a directory entry.
const NoStream uint32 = 0xFFFFFFFF

const (
	headerSize       = 512
	headerDIFATSlots = 109
	miniStreamCutoff = 4096
	byteOrderMark    = 0xFFFE
)

var signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// header is the fixed 512 byte structure at offset 0.
type header struct {
	Signature            [8]byte
	CLSID                [16]byte
	MinorVersion         uint16
	MajorVersion         uint16
	ByteOrder            uint16
	SectorShift          uint16
	MiniSectorShift      uint16
	Reserved             [6]byte
	NumDirSectors        uint32
	NumFATSectors        uint32
	FirstDirSector       uint32
	TransactionSignature uint32
	MiniStreamCutoff     uint32
	FirstMiniFATSector   uint32
	NumMiniFATSectors    uint32
	FirstDIFATSector     uint32
	NumDIFATSectors      uint32
	DIFAT                [headerDIFATSlots]uint32
}

// parseHeader decodes and validates the header block.
func parseHeader(data []byte) (header, error) {
	var h header

	if len(data) < headerSize {
		return h, eris.Wrapf(ErrCorruptHeader, "header is %d bytes, need %d", len(data), headerSize)
	}

	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &h); err != nil {
		return h, eris.Wrap(ErrCorruptHeader, err.Error())
	}

	if !bytes.Equal(h.Signature[:], signature) {
		return h, eris.Wrapf(ErrCorruptHeader, "invalid signature % X", h.Signature[:])
	}

	if h.ByteOrder != byteOrderMark {
		return h, eris.Wrapf(ErrCorruptHeader, "invalid byte order %#04x", h.ByteOrder)
	}

	if h.SectorShift != 9 && h.SectorShift != 12 {
		return h, eris.Wrapf(ErrCorruptHeader, "unsupported sector shift %d", h.SectorShift)
	}

	if h.MiniSectorShift == 0 || h.MiniSectorShift >= h.SectorShift {
		return h, eris.Wrapf(ErrCorruptHeader, "unsupported mini sector shift %d", h.MiniSectorShift)
	}

	if h.MiniStreamCutoff != miniStreamCutoff {
		return h, eris.Wrapf(ErrCorruptHeader, "unexpected mini stream cutoff %d", h.MiniStreamCutoff)
	}

	return h, nil
}
