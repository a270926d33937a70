// Package cfb reads compound files (OLE2 structured storage), the container
// format of Outlook .msg files.
//
// A File is read-only once opened and may be shared by concurrent readers as
// long as the underlying io.ReaderAt supports concurrent ReadAt calls, which
// both *os.File and *bytes.Reader do.
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package cfb

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// SizeClass selects the allocation table a stream is stored in.
type SizeClass int

const (
	// Regular streams are stored in sectors chained by the FAT.
	Regular SizeClass = iota
	// Mini streams are stored in mini sectors of the mini stream, chained by the mini FAT.
	Mini
)

// String returns the name of the size class.
func (c SizeClass) String() string {
	if c == Mini {
		return "mini"
	}

	return "regular"
}

// File is an opened compound file.
type File struct {
	reader         io.ReaderAt
	size           int64
	header         header
	sectorSize     int
	miniSectorSize int
	sectorCount    uint32
	fat            []uint32
	miniFAT        []uint32
	miniStream     []byte
	entries        []Entry
	logger         logrus.FieldLogger
}

// Option configures Open.
type Option func(*File)

// WithLogger sets the logger used for debug output while loading tables.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(f *File) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Open parses the compound file held by reader, which is size bytes long.
func Open(reader io.ReaderAt, size int64, options ...Option) (*File, error) {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	f := &File{
		reader: reader,
		size:   size,
		logger: discard,
	}

	for _, option := range options {
		option(f)
	}

	if size < headerSize {
		return nil, eris.Wrapf(ErrCorruptHeader, "input is %d bytes, need at least %d", size, headerSize)
	}

	headerData := make([]byte, headerSize)

	if _, err := reader.ReadAt(headerData, 0); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "failed to read header")
	}

	h, err := parseHeader(headerData)

	if err != nil {
		return nil, err
	}

	f.header = h
	f.sectorSize = 1 << h.SectorShift
	f.miniSectorSize = 1 << h.MiniSectorShift

	if size > int64(f.sectorSize) {
		f.sectorCount = uint32((size - int64(f.sectorSize) + int64(f.sectorSize) - 1) / int64(f.sectorSize))
	}

	if h.NumFATSectors > f.sectorCount {
		return nil, eris.Wrapf(ErrCorruptHeader, "header declares %d FAT sectors but the file holds %d sectors", h.NumFATSectors, f.sectorCount)
	}

	f.logger.Debugf("Opened compound file: version %d, sector size %d, %d sectors", h.MajorVersion, f.sectorSize, f.sectorCount)

	if err := f.loadFAT(); err != nil {
		return nil, err
	}

	if err := f.loadDirectory(); err != nil {
		return nil, err
	}

	if err := f.loadMiniStream(); err != nil {
		return nil, err
	}

	return f, nil
}

// OpenBytes opens a compound file held in memory.
func OpenBytes(data []byte, options ...Option) (*File, error) {
	return Open(bytes.NewReader(data), int64(len(data)), options...)
}

// OpenFile reads the file at path into memory and opens it.
func OpenFile(path string, options ...Option) (*File, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	return OpenBytes(data, options...)
}

// Size returns the size of the container in bytes.
func (f *File) Size() int64 {
	return f.size
}

// SectorSize returns the regular sector size, 512 or 4096.
func (f *File) SectorSize() int {
	return f.sectorSize
}

// SectorCount returns the number of regular sectors after the header.
func (f *File) SectorCount() uint32 {
	return f.sectorCount
}

// readSector returns the payload of a regular sector. A partial last sector is zero padded.
func (f *File) readSector(id uint32) ([]byte, error) {
	if id >= f.sectorCount {
		return nil, eris.Wrapf(ErrTruncatedStream, "sector %d is beyond the %d sectors in the file", id, f.sectorCount)
	}

	offset := int64(id+1) * int64(f.sectorSize)
	available := f.size - offset

	if available > int64(f.sectorSize) {
		available = int64(f.sectorSize)
	}

	sector := make([]byte, f.sectorSize)

	if _, err := f.reader.ReadAt(sector[:available], offset); err != nil && err != io.EOF {
		return nil, eris.Wrapf(err, "failed to read sector %d", id)
	}

	return sector, nil
}

// loadFAT collects the FAT sector ids from the header and the DIFAT chain and reads the FAT.
func (f *File) loadFAT() error {
	fatSectors := make([]uint32, 0, f.header.NumFATSectors)

	for _, id := range f.header.DIFAT {
		if id == FreeSector || id == EndOfChain {
			continue
		}

		fatSectors = append(fatSectors, id)
	}

	if f.header.NumDIFATSectors > 0 {
		f.logger.Debugf("Loading DIFAT chain starting at sector %d", f.header.FirstDIFATSector)

		perSector := f.sectorSize/4 - 1
		visited := make(map[uint32]struct{})
		next := f.header.FirstDIFATSector

		for i := uint32(0); i < f.header.NumDIFATSectors && next != EndOfChain && next != FreeSector; i++ {
			if _, seen := visited[next]; seen {
				return eris.Wrapf(ErrCyclicChain, "DIFAT chain revisits sector %d", next)
			}

			visited[next] = struct{}{}

			sector, err := f.readSector(next)

			if err != nil {
				return eris.Wrapf(err, "failed to read DIFAT sector %d", next)
			}

			for j := 0; j < perSector; j++ {
				id := binary.LittleEndian.Uint32(sector[j*4:])

				if id != FreeSector && id != EndOfChain {
					fatSectors = append(fatSectors, id)
				}
			}

			next = binary.LittleEndian.Uint32(sector[perSector*4:])
		}
	}

	if uint32(len(fatSectors)) > f.header.NumFATSectors {
		fatSectors = fatSectors[:f.header.NumFATSectors]
	}

	f.fat = make([]uint32, 0, len(fatSectors)*f.sectorSize/4)

	for _, id := range fatSectors {
		sector, err := f.readSector(id)

		if err != nil {
			return eris.Wrapf(err, "failed to read FAT sector %d", id)
		}

		f.fat = append(f.fat, toUint32s(sector)...)
	}

	if uint32(len(f.fat)) > f.sectorCount {
		f.fat = f.fat[:f.sectorCount]
	}

	f.logger.Debugf("FAT references %d sectors from %d FAT sectors", len(f.fat), len(fatSectors))

	return nil
}

// loadMiniStream reads the mini FAT and the mini stream held by the root entry.
func (f *File) loadMiniStream() error {
	if f.header.NumMiniFATSectors > 0 && f.header.FirstMiniFATSector != EndOfChain {
		data, err := f.readWholeChain(f.header.FirstMiniFATSector)

		if err != nil {
			return eris.Wrap(err, "failed to read mini FAT")
		}

		f.miniFAT = toUint32s(data)
	}

	root := f.Root()

	if root.Size > 0 {
		data, err := f.ReadChain(root.StartSector, Regular, root.Size)

		if err != nil {
			return eris.Wrap(err, "failed to read mini stream")
		}

		f.miniStream = data
	}

	f.logger.Debugf("Mini stream is %d bytes with %d mini FAT entries", len(f.miniStream), len(f.miniFAT))

	return nil
}

// readWholeChain follows a FAT chain until its end marker.
func (f *File) readWholeChain(start uint32) ([]byte, error) {
	var out []byte

	visited := make(map[uint32]struct{})

	for sector := start; sector != EndOfChain; sector = f.fat[sector] {
		if int(sector) >= len(f.fat) {
			return nil, eris.Wrapf(ErrTruncatedStream, "chain from sector %d reaches sector %d outside the FAT", start, sector)
		}

		if _, seen := visited[sector]; seen {
			return nil, eris.Wrapf(ErrCyclicChain, "chain from sector %d revisits sector %d", start, sector)
		}

		visited[sector] = struct{}{}

		payload, err := f.readSector(sector)

		if err != nil {
			return nil, eris.Wrapf(err, "chain from sector %d", start)
		}

		out = append(out, payload...)
	}

	return out, nil
}

// ReadChain follows the chain starting at start in the allocation table of
// class and returns exactly length bytes.
func (f *File) ReadChain(start uint32, class SizeClass, length uint64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}

	table := f.fat
	unit := f.sectorSize
	limit := uint64(f.size)

	if class == Mini {
		table = f.miniFAT
		unit = f.miniSectorSize
		limit = uint64(len(f.miniStream))
	}

	if length > limit {
		return nil, eris.Wrapf(ErrTruncatedStream, "%s stream at sector %d declares %d bytes but only %d are available", class, start, length, limit)
	}

	out := make([]byte, 0, length+uint64(unit))
	visited := make(map[uint32]struct{})
	sector := start

	for uint64(len(out)) < length {
		if sector == EndOfChain {
			return nil, eris.Wrapf(ErrTruncatedStream, "%s chain from sector %d ended after %d of %d bytes", class, start, len(out), length)
		}

		if int(sector) >= len(table) {
			return nil, eris.Wrapf(ErrTruncatedStream, "%s chain from sector %d reaches sector %#x outside the allocation table", class, start, sector)
		}

		if _, seen := visited[sector]; seen {
			return nil, eris.Wrapf(ErrCyclicChain, "%s chain from sector %d revisits sector %d", class, start, sector)
		}

		visited[sector] = struct{}{}

		payload, err := f.chunk(class, sector)

		if err != nil {
			return nil, eris.Wrapf(err, "%s chain from sector %d", class, start)
		}

		out = append(out, payload...)
		sector = table[sector]
	}

	return out[:length], nil
}

// chunk returns the payload of one sector or mini sector.
func (f *File) chunk(class SizeClass, sector uint32) ([]byte, error) {
	if class == Regular {
		return f.readSector(sector)
	}

	offset := int(sector) * f.miniSectorSize
	end := offset + f.miniSectorSize

	if end > len(f.miniStream) {
		if offset >= len(f.miniStream) {
			return nil, eris.Wrapf(ErrTruncatedStream, "mini sector %d is beyond the %d byte mini stream", sector, len(f.miniStream))
		}

		end = len(f.miniStream)
	}

	return f.miniStream[offset:end], nil
}

// ReadStream returns the content of a stream entry.
func (f *File) ReadStream(entry *Entry) ([]byte, error) {
	if entry == nil || entry.Type != TypeStream {
		return nil, eris.New("entry is not a stream")
	}

	data, err := f.ReadChain(entry.StartSector, entry.SizeClass(), entry.Size)

	if err != nil {
		return nil, eris.Wrapf(err, "failed to read stream %q", entry.Name)
	}

	return data, nil
}

// toUint32s interprets data as little-endian 32 bit integers.
func toUint32s(data []byte) []uint32 {
	values := make([]uint32, len(data)/4)

	for i := range values {
		values[i] = binary.LittleEndian.Uint32(data[i*4:])
	}

	return values
}
