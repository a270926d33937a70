package msg_test

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mooijtech/go-msg-export/pkg/cfb/cfbtest"
	"github.com/mooijtech/go-msg-export/pkg/mapi"
	"github.com/mooijtech/go-msg-export/pkg/msg"
	"github.com/mooijtech/go-msg-export/pkg/msg/msgtest"
	"golang.org/x/sync/errgroup"
)

func decode(t *testing.T, message *msgtest.Message) *msg.Message {
	t.Helper()

	decoded, err := msg.DecodeBytes(message.Bytes())

	if err != nil {
		t.Fatalf("DecodeBytes() error = %v", err)
	}

	return decoded
}

func TestDecodePlainTextBody(t *testing.T) {
	body := "Hello,\r\n\r\nThe build is green again. Grüße\r\n"

	for _, shift := range []int{9, 12} {
		t.Run(fmt.Sprintf("shift %d", shift), func(t *testing.T) {
			data := (&msgtest.Message{Props: []msgtest.Prop{
				msgtest.String(mapi.PidTagMessageClass, "IPM.Note"),
				msgtest.String(mapi.PidTagBody, body),
			}}).BytesWithOptions(cfbtest.Options{SectorShift: shift})

			message, err := msg.DecodeBytes(data)

			if err != nil {
				t.Fatalf("DecodeBytes() error = %v", err)
			}

			if message.BodyText != body {
				t.Errorf("BodyText = %q, want %q", message.BodyText, body)
			}

			if message.BodyHTML != "" || message.BodyRTF != nil {
				t.Errorf("unexpected bodies: %q %q", message.BodyHTML, message.BodyRTF)
			}

			if message.Type != msg.TypeEmail {
				t.Errorf("Type = %s", message.Type)
			}
		})
	}
}

func TestDecodeKeepsHTMLAndTextBodies(t *testing.T) {
	message := decode(t, &msgtest.Message{Props: []msgtest.Prop{
		msgtest.String(mapi.PidTagBody, "plain"),
		msgtest.Binary(mapi.PidTagHTML, []byte("<p>caf\xe9</p>")),
		msgtest.Int32(mapi.PidTagInternetCodepage, 28591),
	}})

	if message.BodyText != "plain" {
		t.Errorf("BodyText = %q", message.BodyText)
	}

	if message.BodyHTML != "<p>café</p>" {
		t.Errorf("BodyHTML = %q", message.BodyHTML)
	}
}

func TestDecodeRTFBody(t *testing.T) {
	compressed, _ := hex.DecodeString("2d0000002b0000004c5a4675f1c5c7a703000a007263706731323542320af32068656c0900206277" +
		"05b06c647d0a800fa0")

	message := decode(t, &msgtest.Message{Props: []msgtest.Prop{
		msgtest.Binary(mapi.PidTagRtfCompressed, compressed),
	}})

	if want := "{\\rtf1\\ansi\\ansicpg1252\\pard hello world}\r\n"; string(message.BodyRTF) != want {
		t.Errorf("BodyRTF = %q", message.BodyRTF)
	}

	if len(message.Issues) != 0 {
		t.Errorf("Issues = %v", message.Issues)
	}

	broken := decode(t, &msgtest.Message{Props: []msgtest.Prop{
		msgtest.String(mapi.PidTagSubject, "broken rtf"),
		msgtest.Binary(mapi.PidTagRtfCompressed, []byte{1, 2, 3}),
	}})

	if broken.BodyRTF != nil || len(broken.Issues) != 1 {
		t.Errorf("BodyRTF = %q, Issues = %v", broken.BodyRTF, broken.Issues)
	}

	if broken.Subject != "broken rtf" {
		t.Errorf("Subject = %q", broken.Subject)
	}
}

func TestDecodeOrdersAttachmentsByIndex(t *testing.T) {
	source := &msgtest.Message{ReverseChildren: true}

	for i := 0; i < 3; i++ {
		source.Attachments = append(source.Attachments, msgtest.Attachment{Props: []msgtest.Prop{
			msgtest.Int32(mapi.PidTagAttachMethod, mapi.AttachByValue),
			msgtest.String(mapi.PidTagAttachLongFilename, fmt.Sprintf("file-%d.txt", i)),
			msgtest.Binary(mapi.PidTagAttachDataBinary, []byte(fmt.Sprintf("data %d", i))),
		}})
	}

	attachments := decode(t, source).Attachments()

	if len(attachments) != 3 {
		t.Fatalf("len(Attachments()) = %d", len(attachments))
	}

	for i, attachment := range attachments {
		if attachment.Index != uint32(i) || attachment.Name() != fmt.Sprintf("file-%d.txt", i) {
			t.Errorf("attachment %d = %d %q", i, attachment.Index, attachment.Name())
		}

		if attachment.Kind != msg.AttachmentFile || string(attachment.Data) != fmt.Sprintf("data %d", i) {
			t.Errorf("attachment %d: kind %s data %q", i, attachment.Kind, attachment.Data)
		}
	}
}

func TestDecodeNamedProperties(t *testing.T) {
	start := time.Date(2022, time.June, 1, 9, 30, 0, 0, time.UTC)
	source := func(omitMap bool) *msgtest.Message {
		return &msgtest.Message{
			OmitNameMap: omitMap,
			Props: []msgtest.Prop{
				msgtest.String(mapi.PidTagMessageClass, "IPM.Appointment"),
				msgtest.Named(mapi.PidLidAppointmentStart, msgtest.Time(0, start)),
				msgtest.Named(mapi.PidLidLocation, msgtest.String(0, "Room 4")),
				msgtest.Named(mapi.PidNameKeywords, msgtest.Strings(0, "Red", "Blue")),
			},
		}
	}

	t.Run("with map", func(t *testing.T) {
		message := decode(t, source(false))

		if message.Appointment == nil {
			t.Fatal("Appointment = nil")
		}

		if !message.Appointment.Start.Equal(start) || message.Appointment.Location != "Room 4" {
			t.Errorf("Appointment = %+v", message.Appointment)
		}

		if len(message.Categories) != 2 || message.Categories[0] != "Red" || message.Categories[1] != "Blue" {
			t.Errorf("Categories = %v", message.Categories)
		}

		if message.Type != msg.TypeAppointment {
			t.Errorf("Type = %s", message.Type)
		}
	})

	t.Run("without map", func(t *testing.T) {
		message := decode(t, source(true))

		if message.Appointment != nil || message.Categories != nil {
			t.Errorf("Appointment = %+v, Categories = %v", message.Appointment, message.Categories)
		}

		if _, ok := message.Properties().Get(mapi.NamedThreshold); !ok {
			t.Error("the raw named property should still decode")
		}

		if len(message.Issues) != 0 {
			t.Errorf("Issues = %v", message.Issues)
		}
	})
}

func TestDecodeUnrecognizedType(t *testing.T) {
	message := decode(t, &msgtest.Message{Props: []msgtest.Prop{
		msgtest.String(mapi.PidTagSubject, "still here"),
		msgtest.Raw(0x6100, 0x0099, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		msgtest.String(mapi.PidTagBody, "body too"),
	}})

	if message.Subject != "still here" || message.BodyText != "body too" {
		t.Errorf("Subject = %q, BodyText = %q", message.Subject, message.BodyText)
	}

	value, ok := message.Properties().Get(0x6100)

	if !ok || !value.Unrecognized || !bytes.Equal(value.Raw, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("value = %+v", value)
	}
}

func TestDecodeShortInput(t *testing.T) {
	for _, size := range []int{0, 1, 100, 511} {
		_, err := msg.DecodeBytes(make([]byte, size))

		if kind := msg.KindOf(err); kind != msg.KindCorruptHeader {
			t.Errorf("size %d: KindOf(%v) = %s", size, err, kind)
		}
	}
}

func TestDecodeRootWithoutProperties(t *testing.T) {
	_, err := msg.DecodeBytes(cfbtest.Build(cfbtest.Stream("unrelated", []byte("x"))))

	if kind := msg.KindOf(err); kind != msg.KindPropertyStreamMissing {
		t.Errorf("KindOf(%v) = %s", err, kind)
	}
}

func TestDecodeConcurrently(t *testing.T) {
	sources := make([][]byte, 2)

	for i := range sources {
		sources[i] = (&msgtest.Message{Props: []msgtest.Prop{
			msgtest.String(mapi.PidTagSubject, fmt.Sprintf("subject %d", i)),
			msgtest.String(mapi.PidTagBody, fmt.Sprintf("body %d", i)),
		}}).Bytes()
	}

	var group errgroup.Group

	for round := 0; round < 16; round++ {
		for i, data := range sources {
			i, data := i, data

			group.Go(func() error {
				message, err := msg.DecodeBytes(data)

				if err != nil {
					return err
				}

				if message.Subject != fmt.Sprintf("subject %d", i) || message.BodyText != fmt.Sprintf("body %d", i) {
					return fmt.Errorf("source %d decoded as %q / %q", i, message.Subject, message.BodyText)
				}

				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		t.Error(err)
	}
}

func TestDecodeRecipients(t *testing.T) {
	recipient := func(name, email string, role int32) msgtest.Recipient {
		return msgtest.Recipient{Props: []msgtest.Prop{
			msgtest.String(mapi.PidTagDisplayName, name),
			msgtest.String(mapi.PidTagEmailAddress, email),
			msgtest.String(mapi.PidTagAddressType, "SMTP"),
			msgtest.Int32(mapi.PidTagRecipientType, role),
		}}
	}

	message := decode(t, &msgtest.Message{
		Props: []msgtest.Prop{
			msgtest.String(mapi.PidTagSenderName, "Alice"),
			msgtest.String(mapi.PidTagSenderEmailAddress, "alice@example.com"),
		},
		Recipients: []msgtest.Recipient{
			recipient("Bob", "bob@example.com", mapi.RecipientTo),
			recipient("Carol", "carol@example.com", mapi.RecipientCc),
			{MissingProperties: true},
			recipient("Dave", "dave@example.com", mapi.RecipientBcc),
		},
	})

	if got := message.Sender.String(); got != "Alice <alice@example.com>" {
		t.Errorf("Sender = %q", got)
	}

	if len(message.Recipients()) != 3 {
		t.Fatalf("Recipients() = %v", message.Recipients())
	}

	tests := []struct {
		role msg.RecipientRole
		name string
	}{
		{msg.RoleTo, "Bob"},
		{msg.RoleCc, "Carol"},
		{msg.RoleBcc, "Dave"},
	}

	for _, tt := range tests {
		recipients := message.Recipients(tt.role)

		if len(recipients) != 1 || recipients[0].DisplayName != tt.name {
			t.Errorf("Recipients(%s) = %v", tt.role, recipients)
		}
	}

	if len(message.Issues) != 1 || msg.KindOf(message.Issues[0]) != msg.KindPropertyStreamMissing {
		t.Errorf("Issues = %v", message.Issues)
	}

	if message.Headers != nil {
		t.Error("native fields were present, headers should not be parsed")
	}
}

func TestDecodeHeaderFallback(t *testing.T) {
	headers := "From: \"Doe, Jane\" <jane@example.com>\r\n" +
		"To: bob@example.com\r\n" +
		"Cc: Carol <carol@example.com>\r\n" +
		"To: ignored@example.com\r\n" +
		"Message-ID: <id@example.com>\r\n" +
		"\r\n"

	message := decode(t, &msgtest.Message{Props: []msgtest.Prop{
		msgtest.String(mapi.PidTagSubject, "native subject"),
		msgtest.String(mapi.PidTagTransportMessageHeaders, headers),
	}})

	if message.Headers == nil {
		t.Fatal("Headers = nil")
	}

	if message.Sender.DisplayName != "Doe, Jane" || message.Sender.Email != "jane@example.com" {
		t.Errorf("Sender = %+v", message.Sender)
	}

	if to := message.Recipients(msg.RoleTo); len(to) != 1 || to[0].Email != "bob@example.com" {
		t.Errorf("To = %v", to)
	}

	if cc := message.Recipients(msg.RoleCc); len(cc) != 1 || cc[0].DisplayName != "Carol" {
		t.Errorf("Cc = %v", cc)
	}

	if message.Subject != "native subject" || message.InternetMessageID != "id@example.com" {
		t.Errorf("Subject = %q, InternetMessageID = %q", message.Subject, message.InternetMessageID)
	}
}

func TestDecodeHeaderFallbackPerRole(t *testing.T) {
	headers := "From: jane@example.com\r\n" +
		"To: header-to@example.com\r\n" +
		"Cc: Carol <carol@example.com>, dan@example.com\r\n" +
		"\r\n"

	message := decode(t, &msgtest.Message{
		Props: []msgtest.Prop{
			msgtest.String(mapi.PidTagSenderName, "Alice"),
			msgtest.String(mapi.PidTagSenderEmailAddress, "alice@example.com"),
			msgtest.String(mapi.PidTagTransportMessageHeaders, headers),
		},
		Recipients: []msgtest.Recipient{{Props: []msgtest.Prop{
			msgtest.String(mapi.PidTagDisplayName, "Bob"),
			msgtest.String(mapi.PidTagEmailAddress, "bob@example.com"),
			msgtest.Int32(mapi.PidTagRecipientType, mapi.RecipientTo),
		}}},
	})

	if message.Headers == nil {
		t.Fatal("Headers = nil")
	}

	if message.Sender.Email != "alice@example.com" {
		t.Errorf("Sender = %+v, native sender should win", message.Sender)
	}

	if to := message.Recipients(msg.RoleTo); len(to) != 1 || to[0].Email != "bob@example.com" {
		t.Errorf("To = %v, native To should win", to)
	}

	cc := message.Recipients(msg.RoleCc)

	if len(cc) != 2 || cc[0].DisplayName != "Carol" || cc[1].Email != "dan@example.com" {
		t.Errorf("Cc = %v", cc)
	}

	if bcc := message.Recipients(msg.RoleBcc); len(bcc) != 0 {
		t.Errorf("Bcc = %v", bcc)
	}
}

func TestDecodeEmbeddedMessages(t *testing.T) {
	nested := &msgtest.Message{Props: []msgtest.Prop{
		msgtest.String(mapi.PidTagSubject, "forwarded"),
		msgtest.String8(mapi.PidTagBody, []byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}),
	}}
	source := &msgtest.Message{
		Props: []msgtest.Prop{
			msgtest.String(mapi.PidTagSubject, "outer"),
			msgtest.Int32(mapi.PidTagMessageCodepage, 1251),
		},
		Attachments: []msgtest.Attachment{
			{Props: []msgtest.Prop{msgtest.String(mapi.PidTagDisplayName, "forwarded")}, Embedded: nested},
			{MissingProperties: true},
			{Props: []msgtest.Prop{msgtest.Binary(mapi.PidTagAttachDataBinary, []byte("ok"))}},
		},
	}

	message := decode(t, source)
	attachments := message.Attachments()

	if len(attachments) != 3 {
		t.Fatalf("len(Attachments()) = %d", len(attachments))
	}

	embedded := attachments[0].Message()

	if attachments[0].Kind != msg.AttachmentEmbeddedMessage || embedded == nil {
		t.Fatalf("attachment 0: kind %s, err %v", attachments[0].Kind, attachments[0].Err)
	}

	if embedded.Subject != "forwarded" || embedded.BodyText != "Привет" {
		t.Errorf("embedded = %q / %q", embedded.Subject, embedded.BodyText)
	}

	if embedded.Parent() != attachments[0] || embedded.Depth() != 1 || message.Parent() != nil {
		t.Error("embedded message is not linked to its attachment")
	}

	if attachments[0].Owner() != message {
		t.Error("attachment is not linked to its owner")
	}

	if attachments[1].Kind != msg.AttachmentInvalid || msg.KindOf(attachments[1].Err) != msg.KindPropertyStreamMissing {
		t.Errorf("attachment 1: kind %s, err %v", attachments[1].Kind, attachments[1].Err)
	}

	if attachments[2].Kind != msg.AttachmentFile || string(attachments[2].Data) != "ok" {
		t.Errorf("attachment 2: kind %s, data %q", attachments[2].Kind, attachments[2].Data)
	}

	if got := len(message.Messages()); got != 2 {
		t.Errorf("len(Messages()) = %d", got)
	}
}

func TestDecodeEmbeddedMessageWithoutObjectRecord(t *testing.T) {
	message := decode(t, &msgtest.Message{Attachments: []msgtest.Attachment{
		{
			Embedded:         &msgtest.Message{Props: []msgtest.Prop{msgtest.String(mapi.PidTagSubject, "found by name")}},
			OmitObjectRecord: true,
		},
		{Props: []msgtest.Prop{msgtest.Int32(mapi.PidTagAttachMethod, mapi.AttachEmbeddedMessage)}},
	}})

	attachments := message.Attachments()

	if len(attachments) != 2 {
		t.Fatalf("len(Attachments()) = %d", len(attachments))
	}

	if attachments[0].Kind != msg.AttachmentEmbeddedMessage || attachments[0].Message() == nil {
		t.Fatalf("attachment 0: kind %s, err %v", attachments[0].Kind, attachments[0].Err)
	}

	if subject := attachments[0].Message().Subject; subject != "found by name" {
		t.Errorf("embedded subject = %q", subject)
	}

	if attachments[1].Kind != msg.AttachmentInvalid || msg.KindOf(attachments[1].Err) != msg.KindPropertyStreamMissing {
		t.Errorf("attachment 1: kind %s, err %v", attachments[1].Kind, attachments[1].Err)
	}
}

func TestDecodeNestingTooDeep(t *testing.T) {
	var chain *msgtest.Message

	for depth := 3; depth >= 0; depth-- {
		current := &msgtest.Message{Props: []msgtest.Prop{
			msgtest.String(mapi.PidTagSubject, fmt.Sprintf("depth %d", depth)),
		}}

		if chain != nil {
			current.Attachments = []msgtest.Attachment{{Embedded: chain}}
		}

		chain = current
	}

	message, err := msg.NewDecoder(msg.Options{MaxDepth: 2}).DecodeBytes(chain.Bytes())

	if err != nil {
		t.Fatalf("DecodeBytes() error = %v", err)
	}

	messages := message.Messages()

	if len(messages) != 3 {
		t.Fatalf("len(Messages()) = %d", len(messages))
	}

	last := messages[2].Attachments()

	if len(last) != 1 || last[0].Kind != msg.AttachmentInvalid || msg.KindOf(last[0].Err) != msg.KindNestingTooDeep {
		t.Errorf("deepest attachment = %+v", last)
	}

	if messages[2].Subject != "depth 2" {
		t.Errorf("Subject = %q", messages[2].Subject)
	}
}

func TestDecodeOLEAttachment(t *testing.T) {
	objectStorage := mapi.NewTag(mapi.PidTagAttachDataBinary, mapi.PtypObject).StreamName()

	message := decode(t, &msgtest.Message{Attachments: []msgtest.Attachment{{
		Props: []msgtest.Prop{
			msgtest.Int32(mapi.PidTagAttachMethod, mapi.AttachOLE),
			{ID: mapi.PidTagAttachDataBinary, Type: mapi.PtypObject},
		},
		Extra: []*cfbtest.Node{cfbtest.Storage(objectStorage, cfbtest.Stream(mapi.AttachObjectStream, []byte("ole data")))},
	}}})

	attachments := message.Attachments()

	if len(attachments) != 1 || attachments[0].Kind != msg.AttachmentFile || string(attachments[0].Data) != "ole data" {
		t.Errorf("attachments = %+v", attachments)
	}
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.msg")

	if err := os.WriteFile(path, (&msgtest.Message{Props: []msgtest.Prop{
		msgtest.String(mapi.PidTagSubject, "from disk"),
		msgtest.Int32(mapi.PidTagImportance, 2),
	}}).Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	message, err := msg.DecodeFile(path)

	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}

	if message.Subject != "from disk" || message.Importance != msg.ImportanceHigh {
		t.Errorf("Subject = %q, Importance = %s", message.Subject, message.Importance)
	}

	if _, err := msg.DecodeFile(path + ".missing"); err == nil {
		t.Error("DecodeFile() of a missing file should fail")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		class string
		want  msg.MessageType
	}{
		{"IPM.Note", msg.TypeEmail},
		{"ipm.note.SMIME", msg.TypeEmail},
		{"IPM.Appointment", msg.TypeAppointment},
		{"IPM.Schedule.Meeting.Request", msg.TypeAppointmentRequest},
		{"IPM.Schedule.Meeting.Resp.Pos", msg.TypeAppointmentResponse},
		{"IPM.Task", msg.TypeTask},
		{"IPM.StickyNote", msg.TypeStickyNote},
		{"IPM.Notebook", msg.TypeUnknown},
		{"IPM", msg.TypeUnknown},
		{"", msg.TypeUnknown},
	}

	for _, tt := range tests {
		if got := msg.Classify(tt.class); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.class, got, tt.want)
		}
	}
}
