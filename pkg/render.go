// Package msgexport
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgexport

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"
	"github.com/mooijtech/go-msg-export/pkg/mailheader"
	"github.com/mooijtech/go-msg-export/pkg/mapi"
	"github.com/mooijtech/go-msg-export/pkg/msg"
	"github.com/rotisserie/eris"
)

// bodyPart is one alternative of the message body.
type bodyPart struct {
	contentType string
	body        string
}

// bodyParts returns the body alternatives to write, preferring HTML over
// text over RTF unless only the plaintext body is wanted.
func bodyParts(message *msg.Message, exportContext ExportContext) []bodyPart {
	if exportContext.IsOnlyPlaintextBody {
		if message.BodyText == "" {
			return nil
		}

		return []bodyPart{{"text/plain", message.BodyText}}
	}

	var parts []bodyPart

	if message.BodyText != "" {
		parts = append(parts, bodyPart{"text/plain", message.BodyText})
	}

	if message.BodyHTML != "" {
		parts = append(parts, bodyPart{"text/html", message.BodyHTML})
	}

	if len(parts) == 0 && len(message.BodyRTF) > 0 {
		parts = append(parts, bodyPart{"text/rtf", string(message.BodyRTF)})
	}

	return parts
}

// WriteMessage renders message and its attachments as an RFC 5322 message.
// Embedded messages are written as message/rfc822 parts.
func WriteMessage(w io.Writer, message *msg.Message, exportContext ExportContext) error {
	emlWriter, err := mail.CreateWriter(w, messageHeader(message))

	if err != nil {
		return eris.Wrap(err, "failed to create message writer")
	}

	parts := bodyParts(message, exportContext)

	if len(parts) == 0 {
		Logger.Warnf("Empty message body for message: %q", message.Subject)
	} else {
		inlineWriter, err := emlWriter.CreateInline()

		if err != nil {
			return eris.Wrap(err, "failed to create body writer")
		}

		for _, part := range parts {
			var inlineHeader mail.InlineHeader

			inlineHeader.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})

			bodyWriter, err := inlineWriter.CreatePart(inlineHeader)

			if err != nil {
				return eris.Wrapf(err, "failed to create %s part", part.contentType)
			}

			if _, err := io.WriteString(bodyWriter, part.body); err != nil {
				return eris.Wrapf(err, "failed to write %s part", part.contentType)
			}

			if err := bodyWriter.Close(); err != nil {
				return eris.Wrapf(err, "failed to close %s part", part.contentType)
			}
		}

		if err := inlineWriter.Close(); err != nil {
			return eris.Wrap(err, "failed to close body writer")
		}
	}

	for _, attachment := range message.Attachments() {
		switch attachment.Kind {
		case msg.AttachmentInvalid:
			Logger.Warnf("Skipping invalid attachment %d: %s", attachment.Index, attachment.Err)
		case msg.AttachmentEmbeddedMessage:
			if err := writeEmbeddedMessage(emlWriter, attachment, exportContext); err != nil {
				Logger.Warnf("Failed to write embedded message %d, skipping: %s", attachment.Index, err)
			}
		default:
			if err := writeAttachment(emlWriter, attachment); err != nil {
				Logger.Warnf("Failed to write attachment %d, skipping: %s", attachment.Index, err)
			}
		}
	}

	return emlWriter.Close()
}

func writeAttachment(emlWriter *mail.Writer, attachment *msg.Attachment) error {
	var attachmentHeader mail.AttachmentHeader

	attachmentHeader.SetContentType(attachmentContentType(attachment), nil)
	attachmentHeader.SetFilename(attachmentFileName(attachment))

	if attachment.ContentID != "" {
		attachmentHeader.Set("Content-Id", "<"+attachment.ContentID+">")
	}

	attachmentWriter, err := emlWriter.CreateAttachment(attachmentHeader)

	if err != nil {
		return err
	}

	if _, err := attachmentWriter.Write(attachment.Data); err != nil {
		return err
	}

	return attachmentWriter.Close()
}

func writeEmbeddedMessage(emlWriter *mail.Writer, attachment *msg.Attachment, exportContext ExportContext) error {
	var attachmentHeader mail.AttachmentHeader

	attachmentHeader.SetContentType("message/rfc822", nil)
	attachmentHeader.Set("Content-Transfer-Encoding", "8bit")

	name := attachment.Name()

	if name == "" {
		name = attachment.Message().Subject
	}

	attachmentHeader.SetFilename(SafeFileName(name, fmt.Sprintf("message-%d", attachment.Index)) + ".eml")

	attachmentWriter, err := emlWriter.CreateAttachment(attachmentHeader)

	if err != nil {
		return err
	}

	if err := WriteMessage(attachmentWriter, attachment.Message(), exportContext); err != nil {
		return err
	}

	return attachmentWriter.Close()
}

// messageHeader starts from the transport headers, when present, and sets the
// native fields over them.
func messageHeader(message *msg.Message) mail.Header {
	var header mail.Header

	if parsed := message.Headers; parsed != nil {
		header = copyHeader(parsed.Fields)
	} else if parsed := mailheader.Parse(message.Properties().Text(mapi.PidTagTransportMessageHeaders)); parsed != nil {
		header = copyHeader(parsed.Fields)
	}

	// The body is rebuilt, so the transport MIME fields no longer apply.
	for _, key := range []string{"Content-Type", "Content-Transfer-Encoding", "Content-Disposition", "Mime-Version"} {
		header.Del(key)
	}

	if message.Subject != "" || !header.Has("Subject") {
		header.SetSubject(message.Subject)
	}

	if !message.SentOn.IsZero() {
		header.SetDate(message.SentOn)
	} else if !header.Has("Date") && !message.ReceivedOn.IsZero() {
		header.SetDate(message.ReceivedOn)
	}

	from := message.SentRepresenting

	if from.IsEmpty() {
		from = message.Sender
	}

	if address, ok := mailAddress(from); ok {
		header.SetAddressList("From", []*mail.Address{address})

		if sender, ok := mailAddress(message.Sender); ok && !strings.EqualFold(sender.Address, address.Address) {
			header.SetAddressList("Sender", []*mail.Address{sender})
		}
	}

	for _, role := range []msg.RecipientRole{msg.RoleTo, msg.RoleCc, msg.RoleBcc} {
		var addresses []*mail.Address

		for _, recipient := range message.Recipients(role) {
			if address, ok := mailAddress(recipient.Address); ok {
				addresses = append(addresses, address)
			}
		}

		if len(addresses) > 0 {
			header.SetAddressList(role.String(), addresses)
		}
	}

	switch {
	case message.InternetMessageID != "":
		header.SetMessageID(message.InternetMessageID)
	case !header.Has("Message-Id"):
		header.SetMessageID(uuid.NewString() + "@go-msg-export")
	}

	if message.Importance != msg.ImportanceNormal {
		header.Set("Importance", message.Importance.String())
	}

	if message.MessageClass != "" {
		header.Set("X-Message-Class", message.MessageClass)
	}

	if len(message.Categories) > 0 {
		header.Set("Keywords", strings.Join(message.Categories, ", "))
	}

	return header
}

func copyHeader(fields textproto.Header) mail.Header {
	return mail.Header{Header: message.Header{Header: fields.Copy()}}
}

// mailAddress converts an address with an SMTP mailbox. Exchange addresses
// have no '@' and cannot be written to an address list.
func mailAddress(address msg.Address) (*mail.Address, bool) {
	mailbox := address.Mailbox()

	if !strings.Contains(mailbox, "@") {
		return nil, false
	}

	return &mail.Address{Name: address.DisplayName, Address: mailbox}, true
}

func attachmentContentType(attachment *msg.Attachment) string {
	if attachment.MimeType != "" {
		return attachment.MimeType
	}

	extension := attachment.Extension

	if extension == "" {
		extension = fileExtension(attachment.Name())
	}

	if contentType := mime.TypeByExtension(extension); contentType != "" {
		return contentType
	}

	return "application/octet-stream"
}

func attachmentFileName(attachment *msg.Attachment) string {
	return SafeFileName(attachment.Name(), fmt.Sprintf("attachment-%d%s", attachment.Index, attachment.Extension))
}

func fileExtension(name string) string {
	if index := strings.LastIndex(name, "."); index >= 0 {
		return name[index:]
	}

	return ""
}
