package mailheader

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	raw := "Received: from mx.example.com\r\n" +
		"From: \"Doe, Jane\" <jane@example.com>\r\n" +
		"To: bob@example.com, \"Carol\" <carol@example.com>\r\n" +
		"Cc: dave@example.com\r\n" +
		"Subject: =?utf-8?q?Caf=C3=A9?= plans\r\n" +
		"Date: Tue, 1 Nov 2022 10:00:00 +0000\r\n" +
		"Message-ID: <abc@example.com>\r\n" +
		"\r\n"

	header := Parse(raw)

	if header == nil {
		t.Fatal("Parse() = nil")
	}

	if len(header.From) != 1 || header.From[0].Name != "Doe, Jane" || header.From[0].Address != "jane@example.com" {
		t.Errorf("From = %v", header.From)
	}

	if len(header.To) != 2 || header.To[1].Address != "carol@example.com" {
		t.Errorf("To = %v", header.To)
	}

	if len(header.Cc) != 1 || len(header.Bcc) != 0 {
		t.Errorf("Cc = %v, Bcc = %v", header.Cc, header.Bcc)
	}

	if header.Subject != "Café plans" {
		t.Errorf("Subject = %q", header.Subject)
	}

	if want := time.Date(2022, time.November, 1, 10, 0, 0, 0, time.UTC); !header.Date.Equal(want) {
		t.Errorf("Date = %v", header.Date)
	}

	if header.MessageID != "abc@example.com" {
		t.Errorf("MessageID = %q", header.MessageID)
	}

	if len(header.Problems) != 0 {
		t.Errorf("Problems = %v", header.Problems)
	}
}

func TestParseKeepsFirstDuplicate(t *testing.T) {
	header := Parse("From: first@example.com\nFrom: second@example.com\nSubject: one\nSubject: two\n")

	if header == nil || len(header.From) != 1 || header.From[0].Address != "first@example.com" {
		t.Fatalf("From = %v", header)
	}

	if header.Subject != "one" {
		t.Errorf("Subject = %q", header.Subject)
	}
}

func TestParseTolerance(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		from    string
		subject string
	}{
		{
			name:    "NUL in key",
			raw:     "Fr\x00om: nul@example.com\nSubject: nul\n",
			from:    "nul@example.com",
			subject: "nul",
		},
		{
			name:    "malformed line",
			raw:     "From: line@example.com\nthis line has no colon\nSubject: after\n",
			from:    "line@example.com",
			subject: "after",
		},
		{
			name:    "missing terminator",
			raw:     "From: eof@example.com\nSubject: no blank line",
			from:    "eof@example.com",
			subject: "no blank line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := Parse(tt.raw)

			if header == nil {
				t.Fatal("Parse() = nil")
			}

			if len(header.From) != 1 || header.From[0].Address != tt.from {
				t.Errorf("From = %v", header.From)
			}

			if header.Subject != tt.subject {
				t.Errorf("Subject = %q", header.Subject)
			}
		})
	}
}

func TestParseBrokenAddressList(t *testing.T) {
	header := Parse("To: good@example.com, not an address, \"Quoted, Name\" <q@example.com>\n")

	if header == nil {
		t.Fatal("Parse() = nil")
	}

	var addresses []string

	for _, address := range header.To {
		addresses = append(addresses, address.Address)
	}

	if len(addresses) != 2 || addresses[0] != "good@example.com" || addresses[1] != "q@example.com" {
		t.Errorf("To = %v", addresses)
	}

	if len(header.Problems) == 0 {
		t.Error("a broken list should be reported")
	}
}

func TestParseEmpty(t *testing.T) {
	for _, raw := range []string{"", "\x00\x00", "\r\n\r\n"} {
		if header := Parse(raw); header != nil {
			t.Errorf("Parse(%q) = %+v, want nil", raw, header)
		}
	}
}
