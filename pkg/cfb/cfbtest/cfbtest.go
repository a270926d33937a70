// Package cfbtest builds compound files in memory for tests.
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package cfbtest

import (
	"encoding/binary"
	"unicode/utf16"
)

const (
	endOfChain = 0xFFFFFFFE
	freeSector = 0xFFFFFFFF
	fatSector  = 0xFFFFFFFD
	noStream   = 0xFFFFFFFF
	cutoff     = 4096
	miniSize   = 64
)

// Node is a storage or a stream to be written.
type Node struct {
	Name     string
	Data     []byte
	Children []*Node

	storage bool
}

// Storage returns a storage node holding children in the given order.
func Storage(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children, storage: true}
}

// Stream returns a stream node.
func Stream(name string, data []byte) *Node {
	return &Node{Name: name, Data: data}
}

// Add appends children to a storage.
func (n *Node) Add(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// IsStorage reports whether n is a storage.
func (n *Node) IsStorage() bool {
	return n.storage
}

// Options control the layout of the written file.
type Options struct {
	// SectorShift is 9 (512 byte sectors, version 3) or 12 (4096 byte sectors, version 4).
	SectorShift int
}

type placed struct {
	node        *Node
	index       int
	left, right uint32
	child       uint32
	start       uint32
	size        uint64
}

// Build writes a version 3 file with 512 byte sectors holding the children of the root.
func Build(children ...*Node) []byte {
	return BuildWithOptions(Options{SectorShift: 9}, children...)
}

// BuildWithOptions writes a file holding the children of the root.
func BuildWithOptions(options Options, children ...*Node) []byte {
	if options.SectorShift == 0 {
		options.SectorShift = 9
	}

	sectorSize := 1 << options.SectorShift
	root := Storage("Root Entry", children...)

	// Flatten breadth first so the root is entry 0.
	var entries []*placed

	queue := []*Node{root}
	byNode := make(map[*Node]*placed)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		p := &placed{node: node, index: len(entries), left: noStream, right: noStream, child: noStream, start: endOfChain}
		entries = append(entries, p)
		byNode[node] = p

		if node.storage {
			queue = append(queue, node.Children...)
		}
	}

	for _, p := range entries {
		if p.node.storage && len(p.node.Children) > 0 {
			p.child = link(p.node.Children, byNode)
		}
	}

	// Mini stream layout.
	var miniStream []byte
	var miniFAT []uint32

	for _, p := range entries[1:] {
		if p.node.storage || len(p.node.Data) == 0 || len(p.node.Data) >= cutoff {
			continue
		}

		p.start = uint32(len(miniFAT))
		p.size = uint64(len(p.node.Data))
		count := (len(p.node.Data) + miniSize - 1) / miniSize

		for i := 0; i < count; i++ {
			next := uint32(len(miniFAT) + 1)

			if i == count-1 {
				next = endOfChain
			}

			miniFAT = append(miniFAT, next)
		}

		padded := make([]byte, count*miniSize)
		copy(padded, p.node.Data)
		miniStream = append(miniStream, padded...)
	}

	sectorsFor := func(n int) int {
		return (n + sectorSize - 1) / sectorSize
	}

	directorySectors := sectorsFor(len(entries) * 128)
	miniFATSectors := sectorsFor(len(miniFAT) * 4)
	miniStreamSectors := sectorsFor(len(miniStream))
	dataSectors := 0

	for _, p := range entries[1:] {
		if !p.node.storage && len(p.node.Data) >= cutoff {
			dataSectors += sectorsFor(len(p.node.Data))
		}
	}

	payload := directorySectors + miniFATSectors + miniStreamSectors + dataSectors
	fatSectors := 1

	for fatSectors*sectorSize/4 < fatSectors+payload {
		fatSectors++
	}

	total := fatSectors + payload
	fat := make([]uint32, fatSectors*sectorSize/4)

	for i := range fat {
		fat[i] = freeSector
	}

	next := uint32(0)
	allocate := func(count int) uint32 {
		if count == 0 {
			return endOfChain
		}

		start := next

		for i := 0; i < count; i++ {
			if i == count-1 {
				fat[next] = endOfChain
			} else {
				fat[next] = next + 1
			}

			next++
		}

		return start
	}

	for i := 0; i < fatSectors; i++ {
		fat[next] = fatSector
		next++
	}

	directoryStart := allocate(directorySectors)
	miniFATStart := allocate(miniFATSectors)
	miniStreamStart := allocate(miniStreamSectors)

	entries[0].start = miniStreamStart
	entries[0].size = uint64(len(miniStream))

	image := make([]byte, sectorSize*(1+total))

	for _, p := range entries[1:] {
		if p.node.storage || len(p.node.Data) < cutoff {
			continue
		}

		p.size = uint64(len(p.node.Data))
		p.start = allocate(sectorsFor(len(p.node.Data)))
		copy(image[sectorSize*(1+int(p.start)):], p.node.Data)
	}

	// Header.
	h := image[:512]
	copy(h, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	binary.LittleEndian.PutUint16(h[24:], 0x003E)

	if options.SectorShift == 12 {
		binary.LittleEndian.PutUint16(h[26:], 4)
		binary.LittleEndian.PutUint32(h[40:], uint32(directorySectors))
	} else {
		binary.LittleEndian.PutUint16(h[26:], 3)
	}

	binary.LittleEndian.PutUint16(h[28:], 0xFFFE)
	binary.LittleEndian.PutUint16(h[30:], uint16(options.SectorShift))
	binary.LittleEndian.PutUint16(h[32:], 6)
	binary.LittleEndian.PutUint32(h[44:], uint32(fatSectors))
	binary.LittleEndian.PutUint32(h[48:], directoryStart)
	binary.LittleEndian.PutUint32(h[56:], cutoff)
	binary.LittleEndian.PutUint32(h[60:], miniFATStart)
	binary.LittleEndian.PutUint32(h[64:], uint32(miniFATSectors))
	binary.LittleEndian.PutUint32(h[68:], endOfChain)
	binary.LittleEndian.PutUint32(h[72:], 0)

	for i := 0; i < 109; i++ {
		id := uint32(freeSector)

		if i < fatSectors {
			id = uint32(i)
		}

		binary.LittleEndian.PutUint32(h[76+i*4:], id)
	}

	sectorOffset := func(id uint32) int {
		return sectorSize * (1 + int(id))
	}

	for i, value := range fat {
		binary.LittleEndian.PutUint32(image[sectorOffset(uint32(i/(sectorSize/4)))+(i%(sectorSize/4))*4:], value)
	}

	directory := make([]byte, directorySectors*sectorSize)

	for i := 0; i < directorySectors*sectorSize/128; i++ {
		entry := directory[i*128 : (i+1)*128]

		if i >= len(entries) {
			binary.LittleEndian.PutUint32(entry[68:], noStream)
			binary.LittleEndian.PutUint32(entry[72:], noStream)
			binary.LittleEndian.PutUint32(entry[76:], noStream)
			continue
		}

		writeEntry(entry, entries[i])
	}

	copy(image[sectorOffset(directoryStart):], directory)

	miniFATBytes := make([]byte, miniFATSectors*sectorSize)

	for i := range miniFATBytes {
		miniFATBytes[i] = 0xFF
	}

	for i, value := range miniFAT {
		binary.LittleEndian.PutUint32(miniFATBytes[i*4:], value)
	}

	if miniFATSectors > 0 {
		copy(image[sectorOffset(miniFATStart):], miniFATBytes)
	}

	if miniStreamSectors > 0 {
		copy(image[sectorOffset(miniStreamStart):], miniStream)
	}

	return image
}

// link arranges siblings as a balanced tree in the given order and returns the top entry.
func link(nodes []*Node, byNode map[*Node]*placed) uint32 {
	if len(nodes) == 0 {
		return noStream
	}

	middle := len(nodes) / 2
	p := byNode[nodes[middle]]
	p.left = link(nodes[:middle], byNode)
	p.right = link(nodes[middle+1:], byNode)

	return uint32(p.index)
}

func writeEntry(entry []byte, p *placed) {
	name := utf16.Encode([]rune(p.node.Name))

	if len(name) > 31 {
		name = name[:31]
	}

	for i, unit := range name {
		binary.LittleEndian.PutUint16(entry[i*2:], unit)
	}

	binary.LittleEndian.PutUint16(entry[64:], uint16((len(name)+1)*2))

	switch {
	case p.index == 0:
		entry[66] = 5
	case p.node.storage:
		entry[66] = 1
	default:
		entry[66] = 2
	}

	entry[67] = 1
	binary.LittleEndian.PutUint32(entry[68:], p.left)
	binary.LittleEndian.PutUint32(entry[72:], p.right)
	binary.LittleEndian.PutUint32(entry[76:], p.child)
	binary.LittleEndian.PutUint32(entry[116:], p.start)
	binary.LittleEndian.PutUint64(entry[120:], p.size)
}
