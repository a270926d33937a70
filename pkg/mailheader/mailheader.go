// Package mailheader parses the transport message headers stored in Outlook
// messages into the few fields needed when the native sender and recipient
// properties are missing. Parsing is best effort: malformed lines are dropped
// and whatever could be read is returned.
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package mailheader

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// maxRepairs bounds the number of malformed lines dropped before giving up.
const maxRepairs = 10

// Header holds the fields read from transport headers. Duplicated fields keep
// their first occurrence.
type Header struct {
	From      []*mail.Address
	To        []*mail.Address
	Cc        []*mail.Address
	Bcc       []*mail.Address
	Subject   string
	Date      time.Time
	MessageID string

	// Fields is the parsed header, including fields not copied above.
	Fields textproto.Header
	// Problems describes the repairs made while parsing.
	Problems []string
}

// IsEmpty reports whether no field was recovered.
func (h *Header) IsEmpty() bool {
	return h == nil || h.Fields.Len() == 0
}

// Parse reads raw transport headers. It returns nil when raw holds nothing usable.
func Parse(raw string) *Header {
	if strings.TrimSpace(strings.ReplaceAll(raw, "\x00", "")) == "" {
		return nil
	}

	result := &Header{}
	fields, err := read(raw)

	if err != nil {
		fields, err = result.repair(raw, fields, err, maxRepairs)

		if err != nil {
			result.Problems = append(result.Problems, fmt.Sprintf("kept the fields before: %s", err))
		}
	}

	result.Fields = fields

	if fields.Len() == 0 {
		return nil
	}

	header := mail.Header{Header: message.Header{Header: fields}}
	result.From = result.addresses(header, "From")
	result.To = result.addresses(header, "To")
	result.Cc = result.addresses(header, "Cc")
	result.Bcc = result.addresses(header, "Bcc")

	if subject, err := header.Subject(); err == nil {
		result.Subject = subject
	} else {
		result.Subject = header.Get("Subject")
	}

	if date, err := header.Date(); err == nil {
		result.Date = date
	} else if header.Has("Date") {
		result.Problems = append(result.Problems, fmt.Sprintf("unreadable Date: %s", err))
	}

	if id, err := header.MessageID(); err == nil {
		result.MessageID = id
	} else {
		result.MessageID = strings.Trim(strings.TrimSpace(header.Get("Message-Id")), "<>")
	}

	return result
}

// read parses raw with the MIME header reader. The header returned holds the
// fields read before any error.
func read(raw string) (textproto.Header, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	if !strings.HasSuffix(raw, "\n\n") {
		raw = strings.TrimRight(raw, "\n") + "\n\n"
	}

	fields, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(raw)))

	if err == io.EOF {
		err = nil
	}

	return fields, err
}

// repair fixes what ReadHeader rejects: NUL and replacement characters in keys
// are removed, malformed lines are dropped, up to retries times.
func (h *Header) repair(raw string, partial textproto.Header, readErr error, retries int) (textproto.Header, error) {
	if retries <= 0 {
		return partial, readErr
	}

	var builder strings.Builder

	switch {
	case strings.Contains(readErr.Error(), "malformed MIME header key"):
		for _, r := range raw {
			if r != 0 && r != unicode.ReplacementChar {
				builder.WriteRune(r)
			}
		}

		if builder.Len() == len(raw) {
			// Nothing to strip, drop the line holding the key instead.
			key := strings.TrimSpace(strings.TrimPrefix(readErr.Error(), "message: malformed MIME header key: "))

			return h.dropLine(raw, func(line string) bool {
				return strings.HasPrefix(strings.TrimSpace(line), key+":") || strings.HasPrefix(line, key)
			}, partial, readErr, retries)
		}

		h.Problems = append(h.Problems, "removed NUL and replacement characters")
	case strings.Contains(readErr.Error(), "malformed MIME header line"), strings.Contains(readErr.Error(), "malformed MIME header initial line"):
		malformed := readErr.Error()

		if index := strings.Index(malformed, "line: "); index >= 0 {
			malformed = malformed[index+len("line: "):]
		}

		malformed = strings.NewReplacer("\r", "", "\n", "").Replace(malformed)

		return h.dropLine(raw, func(line string) bool {
			return strings.TrimRight(line, "\r") == malformed
		}, partial, readErr, retries)
	default:
		return partial, readErr
	}

	fields, err := read(builder.String())

	if err == nil {
		return fields, nil
	}

	return h.repair(builder.String(), fields, err, retries-1)
}

// dropLine removes the first line matching and parses again.
func (h *Header) dropLine(raw string, matches func(string) bool, partial textproto.Header, readErr error, retries int) (textproto.Header, error) {
	var builder strings.Builder

	dropped := false
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), len(raw)+1)

	for scanner.Scan() {
		if !dropped && matches(scanner.Text()) {
			dropped = true
			h.Problems = append(h.Problems, fmt.Sprintf("removed malformed line %q", scanner.Text()))

			continue
		}

		builder.WriteString(scanner.Text() + "\n")
	}

	if !dropped {
		return partial, readErr
	}

	fields, err := read(builder.String())

	if err == nil {
		return fields, nil
	}

	return h.repair(builder.String(), fields, err, retries-1)
}

// addresses parses an address list field, keeping the entries that parse
// when the list as a whole does not.
func (h *Header) addresses(header mail.Header, key string) []*mail.Address {
	if !header.Has(key) {
		return nil
	}

	list, err := header.AddressList(key)

	if err == nil {
		return list
	}

	h.Problems = append(h.Problems, fmt.Sprintf("unreadable %s list: %s", key, err))

	var kept []*mail.Address

	for _, part := range splitAddressList(header.Get(key)) {
		if address, err := mail.ParseAddress(part); err == nil {
			kept = append(kept, address)
		} else if strings.Contains(part, "@") {
			kept = append(kept, &mail.Address{Address: strings.Trim(strings.TrimSpace(part), "<>\"")})
		}
	}

	return kept
}

// splitAddressList splits on commas outside quotes and angle brackets.
func splitAddressList(value string) []string {
	var parts []string

	quoted, angle, start := false, 0, 0

	for i, r := range value {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '<' && !quoted:
			angle++
		case r == '>' && !quoted && angle > 0:
			angle--
		case (r == ',' || r == ';') && !quoted && angle == 0:
			if part := strings.TrimSpace(value[start:i]); part != "" {
				parts = append(parts, part)
			}

			start = i + 1
		}
	}

	if part := strings.TrimSpace(value[start:]); part != "" {
		parts = append(parts, part)
	}

	return parts
}
