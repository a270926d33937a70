package mapi_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mooijtech/go-msg-export/pkg/cfb"
	"github.com/mooijtech/go-msg-export/pkg/cfb/cfbtest"
	"github.com/mooijtech/go-msg-export/pkg/mapi"
	"github.com/mooijtech/go-msg-export/pkg/msg/msgtest"
	"github.com/rotisserie/eris"
)

func decodeRoot(t *testing.T, message *msgtest.Message) *mapi.Properties {
	t.Helper()

	file, err := cfb.OpenBytes(message.Bytes())

	if err != nil {
		t.Fatalf("OpenBytes() error = %v", err)
	}

	names, err := mapi.ResolveNames(file)

	if err != nil {
		t.Fatalf("ResolveNames() error = %v", err)
	}

	decoder := &mapi.Decoder{File: file, Names: names}
	properties, err := decoder.Decode(file.Root(), mapi.TopLevelMessage)

	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	return properties
}

func TestDecodeScalars(t *testing.T) {
	sent := time.Date(2022, time.March, 4, 10, 30, 15, 0, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	properties := decodeRoot(t, &msgtest.Message{Props: []msgtest.Prop{
		msgtest.String(mapi.PidTagSubject, "Quarterly report"),
		msgtest.Int32(mapi.PidTagImportance, 2),
		msgtest.Int16(0x6001, -5),
		msgtest.Int64(0x6002, 1<<40),
		msgtest.Float64(0x6003, 2.5),
		msgtest.Bool(mapi.PidTagAttachmentHidden, true),
		msgtest.Time(mapi.PidTagClientSubmitTime, sent),
		msgtest.Binary(mapi.PidTagHTML, []byte("<p>hi</p>")),
		msgtest.GUID(0x6004, id),
	}})

	if got := properties.Text(mapi.PidTagSubject); got != "Quarterly report" {
		t.Errorf("subject = %q", got)
	}

	if got, ok := properties.Int(mapi.PidTagImportance); !ok || got != 2 {
		t.Errorf("importance = %d, %v", got, ok)
	}

	if got, ok := properties.Int(0x6001); !ok || got != -5 {
		t.Errorf("int16 = %d, %v", got, ok)
	}

	if got, ok := properties.Int(0x6002); !ok || got != 1<<40 {
		t.Errorf("int64 = %d, %v", got, ok)
	}

	value, _ := properties.Get(0x6003)

	if got, ok := value.Float(); !ok || got != 2.5 {
		t.Errorf("float = %v, %v", got, ok)
	}

	if got, ok := properties.Bool(mapi.PidTagAttachmentHidden); !ok || !got {
		t.Errorf("bool = %v, %v", got, ok)
	}

	if got, ok := properties.Time(mapi.PidTagClientSubmitTime); !ok || !got.Equal(sent) {
		t.Errorf("time = %v, %v", got, ok)
	}

	if got, ok := properties.Bytes(mapi.PidTagHTML); !ok || string(got) != "<p>hi</p>" {
		t.Errorf("binary = %q, %v", got, ok)
	}

	value, _ = properties.Get(0x6004)

	if got, ok := value.GUID(); !ok || got != id {
		t.Errorf("guid = %v, %v", got, ok)
	}

	if _, ok := properties.Int(mapi.PidTagSubject); ok {
		t.Error("a string property should not read as an integer")
	}
}

func TestDecodeMultiValued(t *testing.T) {
	properties := decodeRoot(t, &msgtest.Message{Props: []msgtest.Prop{
		msgtest.Strings(0x6010, "red", "green", "blue"),
		msgtest.Int32s(0x6011, 3, 1, 4),
		msgtest.BinaryList(0x6012, []byte{1}, []byte{2, 3}),
	}})

	value, _ := properties.Get(0x6010)
	texts, ok := value.Texts()

	if !ok || len(texts) != 3 || texts[0] != "red" || texts[2] != "blue" {
		t.Errorf("Texts() = %v, %v", texts, ok)
	}

	value, _ = properties.Get(0x6011)
	ints, ok := value.Ints()

	if !ok || len(ints) != 3 || ints[0] != 3 || ints[2] != 4 {
		t.Errorf("Ints() = %v, %v", ints, ok)
	}

	value, _ = properties.Get(0x6012)
	blobs, ok := value.BytesList()

	if !ok || len(blobs) != 2 || !bytes.Equal(blobs[1], []byte{2, 3}) {
		t.Errorf("BytesList() = %v, %v", blobs, ok)
	}
}

func TestDecodeCodepage(t *testing.T) {
	tests := []struct {
		name     string
		props    []msgtest.Prop
		encoded  []byte
		expected string
	}{
		{
			name:     "default windows-1252",
			encoded:  []byte("caf\xe9"),
			expected: "café",
		},
		{
			name:     "message codepage 1251",
			props:    []msgtest.Prop{msgtest.Int32(mapi.PidTagMessageCodepage, 1251)},
			encoded:  []byte("\xcf\xf0\xe8\xe2\xe5\xf2"),
			expected: "Привет",
		},
		{
			name:     "internet codepage utf-8",
			props:    []msgtest.Prop{msgtest.Int32(mapi.PidTagInternetCodepage, 65001)},
			encoded:  []byte("café"),
			expected: "café",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := append(tt.props, msgtest.String8(mapi.PidTagSubject, tt.encoded))
			properties := decodeRoot(t, &msgtest.Message{Props: props})

			if got := properties.Text(mapi.PidTagSubject); got != tt.expected {
				t.Errorf("subject = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDecodeUnrecognizedType(t *testing.T) {
	properties := decodeRoot(t, &msgtest.Message{Props: []msgtest.Prop{
		msgtest.Raw(0x6020, 0x0099, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		msgtest.String(mapi.PidTagSubject, "still here"),
	}})

	value, ok := properties.Get(0x6020)

	if !ok || !value.Unrecognized || !bytes.Equal(value.Raw, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("unrecognized value = %+v, %v", value, ok)
	}

	if _, ok := value.Int(); ok {
		t.Error("an unrecognized value should not read as an integer")
	}

	if got := properties.Text(mapi.PidTagSubject); got != "still here" {
		t.Errorf("subject = %q", got)
	}
}

func TestDecodeMissingSideStream(t *testing.T) {
	message := &msgtest.Message{Props: []msgtest.Prop{
		msgtest.String(mapi.PidTagSubject, "subject"),
	}}
	data := message.Bytes()

	file, err := cfb.OpenBytes(data)

	if err != nil {
		t.Fatalf("OpenBytes() error = %v", err)
	}

	// Ask for a record whose side stream does not exist by decoding a storage
	// that holds only a property stream.
	image := cfbtest.Build(cfbtest.Stream(mapi.PropertiesStream, streamWithRecord(mapi.NewTag(mapi.PidTagBody, mapi.PtypString))))
	bare, err := cfb.OpenBytes(image)

	if err != nil {
		t.Fatalf("OpenBytes() error = %v", err)
	}

	properties, err := (&mapi.Decoder{File: bare}).Decode(bare.Root(), mapi.TopLevelMessage)

	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if _, ok := properties.Get(mapi.PidTagBody); ok {
		t.Error("body without a side stream should be absent")
	}

	if properties, err := (&mapi.Decoder{File: file}).Decode(file.Root(), mapi.TopLevelMessage); err != nil || properties.Text(mapi.PidTagSubject) != "subject" {
		t.Errorf("Decode() = %v, %v", properties, err)
	}
}

func TestDecodePropertyStreamMissing(t *testing.T) {
	file, err := cfb.OpenBytes(cfbtest.Build(cfbtest.Stream("other", []byte("x"))))

	if err != nil {
		t.Fatalf("OpenBytes() error = %v", err)
	}

	_, err = (&mapi.Decoder{File: file}).Decode(file.Root(), mapi.TopLevelMessage)

	if !eris.Is(err, mapi.ErrPropertyStreamMissing) {
		t.Errorf("Decode() error = %v, want ErrPropertyStreamMissing", err)
	}
}

func streamWithRecord(tag mapi.Tag) []byte {
	data := make([]byte, 32+16)
	data[32] = byte(tag)
	data[33] = byte(tag >> 8)
	data[34] = byte(tag >> 16)
	data[35] = byte(tag >> 24)

	return data
}

func TestTag(t *testing.T) {
	tag := mapi.NewTag(mapi.PidTagSubject, mapi.PtypString)

	if tag.ID() != 0x0037 || tag.Type() != mapi.PtypString {
		t.Errorf("tag = %s", tag)
	}

	if got := tag.StreamName(); got != "__substg1.0_0037001F" {
		t.Errorf("StreamName() = %q", got)
	}

	if tag.IsNamed() || !mapi.NewTag(0x8001, mapi.PtypTime).IsNamed() {
		t.Error("IsNamed() is wrong around the threshold")
	}

	if got := mapi.PtypMultipleString.String(); got != "PtypMultipleString" {
		t.Errorf("String() = %q", got)
	}
}

func TestFiletime(t *testing.T) {
	want := time.Date(2001, time.September, 9, 1, 46, 40, 500, time.UTC).Truncate(100)

	if got := mapi.FiletimeToTime(mapi.TimeToFiletime(want)); !got.Equal(want) {
		t.Errorf("FiletimeToTime() = %v, want %v", got, want)
	}

	if got := mapi.FiletimeToTime(116444736000000000); !got.Equal(time.Unix(0, 0)) {
		t.Errorf("FiletimeToTime(unix epoch) = %v", got)
	}
}
