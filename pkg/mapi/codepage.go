// Package mapi
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package mapi

import (
	"bytes"
	"io"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DefaultCodepage is used for PtypString8 values when a storage declares none.
const DefaultCodepage = 1252

// codepageCharsets maps Windows code page identifiers to charset labels.
var codepageCharsets = map[int]string{
	437:   "ibm437",
	850:   "ibm850",
	852:   "ibm852",
	866:   "ibm866",
	874:   "windows-874",
	932:   "shift_jis",
	936:   "gbk",
	949:   "euc-kr",
	950:   "big5",
	1250:  "windows-1250",
	1251:  "windows-1251",
	1252:  "windows-1252",
	1253:  "windows-1253",
	1254:  "windows-1254",
	1255:  "windows-1255",
	1256:  "windows-1256",
	1257:  "windows-1257",
	1258:  "windows-1258",
	10000: "macintosh",
	20127: "us-ascii",
	20866: "koi8-r",
	21866: "koi8-u",
	28591: "iso-8859-1",
	28592: "iso-8859-2",
	28593: "iso-8859-3",
	28594: "iso-8859-4",
	28595: "iso-8859-5",
	28596: "iso-8859-6",
	28597: "iso-8859-7",
	28598: "iso-8859-8",
	28599: "iso-8859-9",
	28603: "iso-8859-13",
	28605: "iso-8859-15",
	50220: "iso-2022-jp",
	51932: "euc-jp",
	54936: "gb18030",
	65001: "utf-8",
}

// CharsetName returns the charset label of a Windows code page, or "" when unknown.
func CharsetName(codepage int) string {
	return codepageCharsets[codepage]
}

// DecodeString8 decodes single or multi byte text in the given code page.
// Unknown code pages and undecodable input fall back to windows-1252.
func DecodeString8(data []byte, codepage int) string {
	data = trimTerminator8(data)

	if len(data) == 0 {
		return ""
	}

	if label := CharsetName(codepage); label != "" {
		reader, err := charset.Reader(label, bytes.NewReader(data))

		if err == nil {
			decoded, err := io.ReadAll(reader)

			if err == nil {
				return string(decoded)
			}
		}
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)

	if err != nil {
		return string(data)
	}

	return string(decoded)
}

// DecodeUnicode decodes UTF-16LE text, dropping the terminating NUL if present.
func DecodeUnicode(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}

	// Only the terminating code unit is dropped; NULs inside the value are kept.
	if n := len(data); n >= 2 && data[n-2] == 0 && data[n-1] == 0 {
		data = data[:n-2]
	}

	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)

	if err != nil {
		return ""
	}

	return string(decoded)
}

// trimTerminator8 drops the terminating NUL of an 8-bit string.
func trimTerminator8(data []byte) []byte {
	if n := len(data); n > 0 && data[n-1] == 0 {
		return data[:n-1]
	}

	return data
}
