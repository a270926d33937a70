// Package msg decodes Outlook .msg files into a read-only message tree.
//
// A decoded tree is stored as flat slices of messages and attachments linked
// by index, built breadth first from a work queue. Nothing in this package
// modifies a tree after Decode returns, so trees may be shared between
// goroutines.
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msg

import (
	"fmt"
	"time"

	"github.com/mooijtech/go-msg-export/pkg/mailheader"
	"github.com/mooijtech/go-msg-export/pkg/mapi"
)

// MessageType is derived from the message class.
type MessageType int

// Message types.
const (
	TypeUnknown MessageType = iota
	TypeEmail
	TypeAppointment
	TypeAppointmentRequest
	TypeAppointmentResponse
	TypeTask
	TypeStickyNote
)

// String returns the name of the message type.
func (t MessageType) String() string {
	switch t {
	case TypeEmail:
		return "email"
	case TypeAppointment:
		return "appointment"
	case TypeAppointmentRequest:
		return "appointment_request"
	case TypeAppointmentResponse:
		return "appointment_response"
	case TypeTask:
		return "task"
	case TypeStickyNote:
		return "sticky_note"
	default:
		return "unknown"
	}
}

// Importance of a message.
type Importance int

// Importance levels, matching PidTagImportance.
const (
	ImportanceLow Importance = iota
	ImportanceNormal
	ImportanceHigh
)

// String returns the name of the importance.
func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "low"
	case ImportanceHigh:
		return "high"
	default:
		return "normal"
	}
}

// RecipientRole is the role of a recipient.
type RecipientRole int

// Recipient roles.
const (
	RoleTo RecipientRole = iota + 1
	RoleCc
	RoleBcc
)

// String returns the header name of the role.
func (r RecipientRole) String() string {
	switch r {
	case RoleCc:
		return "Cc"
	case RoleBcc:
		return "Bcc"
	default:
		return "To"
	}
}

// Address holds the raw address fields of a sender or recipient.
// No field is derived from another; consumers choose which one to show.
type Address struct {
	DisplayName string
	Email       string
	AddressType string
	SMTPAddress string
}

// IsEmpty reports whether all fields are empty.
func (a Address) IsEmpty() bool {
	return a.DisplayName == "" && a.Email == "" && a.SMTPAddress == ""
}

// Mailbox returns the SMTP address if known, otherwise the email address.
func (a Address) Mailbox() string {
	if a.SMTPAddress != "" {
		return a.SMTPAddress
	}

	return a.Email
}

// String formats the address as "Name <mailbox>".
func (a Address) String() string {
	mailbox := a.Mailbox()

	switch {
	case a.DisplayName == "":
		return mailbox
	case mailbox == "" || mailbox == a.DisplayName:
		return a.DisplayName
	default:
		return fmt.Sprintf("%s <%s>", a.DisplayName, mailbox)
	}
}

// Recipient is one entry of the recipient table.
type Recipient struct {
	Address
	Role RecipientRole
}

// Flag is the follow up flag of a message.
type Flag struct {
	Request      string
	Status       int32
	Completed    bool
	CompleteTime time.Time
}

// Task holds the task fields of a message.
type Task struct {
	Status          int32
	PercentComplete float64
	StartDate       time.Time
	DueDate         time.Time
	DateCompleted   time.Time
	Complete        bool
}

// Appointment holds the calendar fields of a message.
type Appointment struct {
	Location          string
	Start             time.Time
	End               time.Time
	AllDay            bool
	RecurrenceType    int32
	RecurrencePattern string
}

// Message is a decoded message. Optional text fields are empty when absent
// and optional times are zero when absent.
type Message struct {
	Subject           string
	MessageClass      string
	Type              MessageType
	Sender            Address
	SentRepresenting  Address
	SentOn            time.Time
	ReceivedOn        time.Time
	Importance        Importance
	InternetMessageID string
	BodyText          string
	BodyHTML          string
	BodyRTF           []byte
	Categories        []string
	Flag              *Flag
	Task              *Task
	Appointment       *Appointment

	// Headers holds the parsed transport headers when they were needed to
	// fill in a missing sender or recipient list.
	Headers *mailheader.Header
	// Issues lists problems that did not stop the decode.
	Issues []error

	tree        *tree
	index       int
	parent      int
	depth       int
	recipients  []Recipient
	attachments []int
	properties  *mapi.Properties
}

// Recipients returns the recipients with one of the given roles, or all of them.
func (m *Message) Recipients(roles ...RecipientRole) []Recipient {
	if len(roles) == 0 {
		return m.recipients
	}

	var recipients []Recipient

	for _, recipient := range m.recipients {
		for _, role := range roles {
			if recipient.Role == role {
				recipients = append(recipients, recipient)
				break
			}
		}
	}

	return recipients
}

// Attachments returns the attachments ordered by their storage index.
func (m *Message) Attachments() []*Attachment {
	attachments := make([]*Attachment, len(m.attachments))

	for i, index := range m.attachments {
		attachments[i] = &m.tree.attachments[index]
	}

	return attachments
}

// Parent returns the attachment holding an embedded message, or nil for the top-level message.
func (m *Message) Parent() *Attachment {
	if m.parent < 0 {
		return nil
	}

	return &m.tree.attachments[m.parent]
}

// Depth returns the nesting depth, 0 for the top-level message.
func (m *Message) Depth() int {
	return m.depth
}

// Properties returns every decoded property of the message storage.
func (m *Message) Properties() *mapi.Properties {
	return m.properties
}

// Messages returns the message and every message nested below it, breadth first.
func (m *Message) Messages() []*Message {
	messages := []*Message{m}

	for i := 0; i < len(messages); i++ {
		for _, attachment := range messages[i].Attachments() {
			if nested := attachment.Message(); nested != nil {
				messages = append(messages, nested)
			}
		}
	}

	return messages
}

// HasBody reports whether any body variant is present.
func (m *Message) HasBody() bool {
	return m.BodyText != "" || m.BodyHTML != "" || len(m.BodyRTF) > 0
}

// AttachmentKind tells the variants of an attachment apart.
type AttachmentKind int

// Attachment kinds.
const (
	// AttachmentFile holds binary data.
	AttachmentFile AttachmentKind = iota
	// AttachmentEmbeddedMessage holds a nested message.
	AttachmentEmbeddedMessage
	// AttachmentInvalid could not be decoded; Err holds the reason.
	AttachmentInvalid
)

// String returns the name of the attachment kind.
func (k AttachmentKind) String() string {
	switch k {
	case AttachmentFile:
		return "file"
	case AttachmentEmbeddedMessage:
		return "embedded_message"
	default:
		return "invalid"
	}
}

// Attachment is a file or an embedded message.
type Attachment struct {
	Kind            AttachmentKind
	Index           uint32
	FileName        string
	LongFileName    string
	DisplayName     string
	Extension       string
	ContentID       string
	ContentLocation string
	MimeType        string
	Method          int32
	Hidden          bool
	Data            []byte
	// Err is set for invalid attachments.
	Err error

	tree       *tree
	owner      int
	message    int
	properties *mapi.Properties
}

// Name returns the long filename, the short filename or the display name, whichever is set first.
func (a *Attachment) Name() string {
	switch {
	case a.LongFileName != "":
		return a.LongFileName
	case a.FileName != "":
		return a.FileName
	default:
		return a.DisplayName
	}
}

// Message returns the embedded message, or nil when the attachment is not one.
func (a *Attachment) Message() *Message {
	if a.Kind != AttachmentEmbeddedMessage || a.message < 0 {
		return nil
	}

	return &a.tree.messages[a.message]
}

// Owner returns the message the attachment belongs to.
func (a *Attachment) Owner() *Message {
	return &a.tree.messages[a.owner]
}

// Properties returns every decoded property of the attachment storage, or nil
// when the attachment properties could not be read.
func (a *Attachment) Properties() *mapi.Properties {
	return a.properties
}

// tree owns every message and attachment of one decode.
type tree struct {
	messages    []Message
	attachments []Attachment
}
