package cfb_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/mooijtech/go-msg-export/pkg/cfb"
	"github.com/mooijtech/go-msg-export/pkg/cfb/cfbtest"
	"github.com/rotisserie/eris"
)

func TestOpenRejectsShortInput(t *testing.T) {
	inputs := [][]byte{nil, {}, make([]byte, 100), make([]byte, 511)}

	for _, input := range inputs {
		if _, err := cfb.OpenBytes(input); !eris.Is(err, cfb.ErrCorruptHeader) {
			t.Errorf("OpenBytes(%d bytes) error = %v, want ErrCorruptHeader", len(input), err)
		}
	}
}

func TestOpenRejectsBadHeader(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		value  []byte
	}{
		{"signature", 0, []byte{0x00}},
		{"byte order", 28, []byte{0xFF, 0xFE}},
		{"sector shift", 30, []byte{10, 0}},
		{"mini sector shift", 32, []byte{9, 0}},
		{"mini stream cutoff", 56, []byte{0, 0x20, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := cfbtest.Build(cfbtest.Stream("a", []byte("hello")))
			copy(image[tt.offset:], tt.value)

			if _, err := cfb.OpenBytes(image); !eris.Is(err, cfb.ErrCorruptHeader) {
				t.Errorf("OpenBytes() error = %v, want ErrCorruptHeader", err)
			}
		})
	}
}

func TestReadStreams(t *testing.T) {
	small := []byte("a short stream kept in the mini stream")
	large := bytes.Repeat([]byte("0123456789abcdef"), 700)

	for _, shift := range []int{9, 12} {
		image := cfbtest.BuildWithOptions(cfbtest.Options{SectorShift: shift},
			cfbtest.Stream("small", small),
			cfbtest.Stream("empty", nil),
			cfbtest.Storage("folder",
				cfbtest.Stream("large", large),
			),
		)

		f, err := cfb.OpenBytes(image)

		if err != nil {
			t.Fatalf("shift %d: OpenBytes() error = %v", shift, err)
		}

		if f.SectorSize() != 1<<shift {
			t.Errorf("shift %d: SectorSize() = %d", shift, f.SectorSize())
		}

		tests := []struct {
			path  string
			want  []byte
			class cfb.SizeClass
		}{
			{"small", small, cfb.Mini},
			{"empty", []byte{}, cfb.Mini},
			{"folder/large", large, cfb.Regular},
			{"FOLDER/Large", large, cfb.Regular},
		}

		for _, tt := range tests {
			entry := f.Find(tt.path)

			if entry == nil {
				t.Fatalf("shift %d: Find(%q) = nil", shift, tt.path)
			}

			if entry.SizeClass() != tt.class {
				t.Errorf("shift %d: %q size class = %s, want %s", shift, tt.path, entry.SizeClass(), tt.class)
			}

			got, err := f.ReadStream(entry)

			if err != nil {
				t.Fatalf("shift %d: ReadStream(%q) error = %v", shift, tt.path, err)
			}

			if !bytes.Equal(got, tt.want) {
				t.Errorf("shift %d: ReadStream(%q) returned %d bytes, want %d", shift, tt.path, len(got), len(tt.want))
			}
		}
	}
}

func TestChildrenKeepDirectoryOrder(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g"}

	var nodes []*cfbtest.Node

	for _, name := range names {
		nodes = append(nodes, cfbtest.Stream(name, []byte(name)))
	}

	f, err := cfb.OpenBytes(cfbtest.Build(cfbtest.Storage("parent", nodes...)))

	if err != nil {
		t.Fatalf("OpenBytes() error = %v", err)
	}

	parent := f.Find("parent")

	if parent == nil || !parent.IsStorage() {
		t.Fatalf("Find(parent) = %v", parent)
	}

	children := parent.Children()

	if len(children) != len(names) {
		t.Fatalf("len(Children()) = %d, want %d", len(children), len(names))
	}

	for i, child := range children {
		if child.Name != names[i] {
			t.Errorf("Children()[%d] = %q, want %q", i, child.Name, names[i])
		}
	}

	if f.Find("parent/missing") != nil {
		t.Error("Find(parent/missing) should be nil")
	}
}

func TestCyclicChain(t *testing.T) {
	image := cfbtest.Build(cfbtest.Stream("large", bytes.Repeat([]byte{1}, 5000)))
	f, err := cfb.OpenBytes(image)

	if err != nil {
		t.Fatalf("OpenBytes() error = %v", err)
	}

	start := f.Find("large").StartSector

	// FAT sector 0 follows the header; point the second sector back at the first.
	binary.LittleEndian.PutUint32(image[512+4*(int(start)+1):], start)

	f, err = cfb.OpenBytes(image)

	if err != nil {
		t.Fatalf("OpenBytes() after patch error = %v", err)
	}

	if _, err := f.ReadStream(f.Find("large")); !eris.Is(err, cfb.ErrCyclicChain) {
		t.Errorf("ReadStream() error = %v, want ErrCyclicChain", err)
	}
}

func TestTruncatedStream(t *testing.T) {
	image := cfbtest.Build(cfbtest.Stream("large", bytes.Repeat([]byte{2}, 8192)))

	// The large stream is laid out last.
	f, err := cfb.OpenBytes(image[:len(image)-2048])

	if err != nil {
		t.Fatalf("OpenBytes() error = %v", err)
	}

	if _, err := f.ReadStream(f.Find("large")); !eris.Is(err, cfb.ErrTruncatedStream) {
		t.Errorf("ReadStream() error = %v, want ErrTruncatedStream", err)
	}
}

func TestDirectoryCycle(t *testing.T) {
	image := cfbtest.Build(cfbtest.Stream("only", []byte("x")))

	// One FAT sector, then the directory. Entry 1 links left to itself.
	binary.LittleEndian.PutUint32(image[2*512+128+68:], 1)

	if _, err := cfb.OpenBytes(image); !eris.Is(err, cfb.ErrMalformedDirectory) {
		t.Errorf("OpenBytes() error = %v, want ErrMalformedDirectory", err)
	}
}

func TestDirectoryLinkOutOfRange(t *testing.T) {
	image := cfbtest.Build(cfbtest.Stream("only", []byte("x")))
	binary.LittleEndian.PutUint32(image[2*512+128+72:], 4000)

	if _, err := cfb.OpenBytes(image); !eris.Is(err, cfb.ErrMalformedDirectory) {
		t.Errorf("OpenBytes() error = %v, want ErrMalformedDirectory", err)
	}
}

// moveFATToDIFAT moves the FAT sector ids out of the header slots into a DIFAT
// sector appended to image. next is written as the DIFAT sector's next pointer;
// count is stored as the number of DIFAT sectors.
func moveFATToDIFAT(image []byte, next func(id uint32) uint32, count uint32) []byte {
	const sectorSize = 512

	id := uint32(len(image)/sectorSize - 1)
	difat := bytes.Repeat([]byte{0xFF}, sectorSize)
	header := image[:512]
	numFATSectors := binary.LittleEndian.Uint32(header[44:])

	for i := uint32(0); i < numFATSectors; i++ {
		copy(difat[i*4:], header[76+i*4:80+i*4])
		binary.LittleEndian.PutUint32(header[76+i*4:], cfb.FreeSector)
	}

	binary.LittleEndian.PutUint32(difat[sectorSize-4:], next(id))
	binary.LittleEndian.PutUint32(header[68:], id)
	binary.LittleEndian.PutUint32(header[72:], count)

	// The first FAT sector follows the header and covers the appended sector.
	binary.LittleEndian.PutUint32(image[sectorSize+4*int(id):], cfb.DIFATSector)

	return append(image, difat...)
}

func TestDIFATChain(t *testing.T) {
	small := []byte("difat body")
	large := bytes.Repeat([]byte("fedcba9876543210"), 400)

	build := func() []byte {
		return cfbtest.Build(
			cfbtest.Stream("small", small),
			cfbtest.Stream("large", large),
		)
	}

	t.Run("fat listed in difat sector", func(t *testing.T) {
		image := moveFATToDIFAT(build(), func(uint32) uint32 { return cfb.EndOfChain }, 1)
		f, err := cfb.OpenBytes(image)

		if err != nil {
			t.Fatalf("OpenBytes() error = %v", err)
		}

		for name, want := range map[string][]byte{"small": small, "large": large} {
			data, err := f.ReadStream(f.Find(name))

			if err != nil {
				t.Fatalf("ReadStream(%s) error = %v", name, err)
			}

			if !bytes.Equal(data, want) {
				t.Errorf("ReadStream(%s) returned %d bytes, want %d", name, len(data), len(want))
			}
		}
	})

	t.Run("difat sector linked to itself", func(t *testing.T) {
		image := moveFATToDIFAT(build(), func(id uint32) uint32 { return id }, 2)

		if _, err := cfb.OpenBytes(image); !eris.Is(err, cfb.ErrCyclicChain) {
			t.Errorf("OpenBytes() error = %v, want ErrCyclicChain", err)
		}
	})
}
