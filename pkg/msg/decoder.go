// Package msg
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msg

import (
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/mooijtech/go-msg-export/pkg/cfb"
	"github.com/mooijtech/go-msg-export/pkg/mailheader"
	"github.com/mooijtech/go-msg-export/pkg/mapi"
	"github.com/mooijtech/go-msg-export/pkg/rtf"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// DefaultMaxDepth is the nesting limit used when Options.MaxDepth is not set.
const DefaultMaxDepth = 32

// Options configures a Decoder.
type Options struct {
	// MaxDepth limits how deep embedded messages may nest.
	MaxDepth int
	// Codepage decodes PtypString8 values of storages that declare no code page.
	Codepage int
	Logger   logrus.FieldLogger
}

// Decoder decodes .msg files. A Decoder holds no state between calls and may
// be used from several goroutines.
type Decoder struct {
	options Options
	logger  logrus.FieldLogger
}

// NewDecoder returns a Decoder using options, filling in defaults.
func NewDecoder(options Options) *Decoder {
	if options.MaxDepth <= 0 {
		options.MaxDepth = DefaultMaxDepth
	}

	if options.Codepage <= 0 {
		options.Codepage = mapi.DefaultCodepage
	}

	logger := options.Logger

	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	return &Decoder{options: options, logger: logger}
}

// Decode decodes the .msg file held by r.
func Decode(r io.ReaderAt, size int64) (*Message, error) {
	return NewDecoder(Options{}).Decode(r, size)
}

// DecodeBytes decodes a .msg file held in memory.
func DecodeBytes(data []byte) (*Message, error) {
	return NewDecoder(Options{}).DecodeBytes(data)
}

// DecodeFile decodes the .msg file at path.
func DecodeFile(path string) (*Message, error) {
	return NewDecoder(Options{}).DecodeFile(path)
}

// Decode decodes the .msg file held by r.
func (d *Decoder) Decode(r io.ReaderAt, size int64) (*Message, error) {
	file, err := cfb.Open(r, size, cfb.WithLogger(d.logger))

	if err != nil {
		return nil, err
	}

	return d.Build(file)
}

// DecodeBytes decodes a .msg file held in memory.
func (d *Decoder) DecodeBytes(data []byte) (*Message, error) {
	file, err := cfb.OpenBytes(data, cfb.WithLogger(d.logger))

	if err != nil {
		return nil, err
	}

	return d.Build(file)
}

// DecodeFile decodes the .msg file at path. The file is closed before
// returning; every value of the tree has been read by then.
func (d *Decoder) DecodeFile(path string) (*Message, error) {
	file, err := os.Open(path)

	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}

	defer func() {
		if err := file.Close(); err != nil {
			d.logger.Warnf("Failed to close %s: %s", path, err)
		}
	}()

	info, err := file.Stat()

	if err != nil {
		return nil, eris.Wrapf(err, "failed to stat %s", path)
	}

	message, err := d.Decode(file, info.Size())

	if err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", path)
	}

	return message, nil
}

// job is a message storage waiting in the build queue.
type job struct {
	storage  *cfb.Entry
	kind     mapi.StorageKind
	parent   int
	depth    int
	codepage int
}

// builder holds the state of one Build call.
type builder struct {
	file    *cfb.File
	names   *mapi.NameMap
	options Options
	logger  logrus.FieldLogger
	tree    *tree
}

// Build decodes the message tree of an opened compound file. Messages are
// built breadth first from a queue, so nesting never grows the call stack.
// Errors in the root storage are returned; errors below it invalidate the
// attachment holding the failing message.
func (d *Decoder) Build(file *cfb.File) (*Message, error) {
	names, namesErr := mapi.ResolveNames(file)

	if namesErr != nil {
		d.logger.Warnf("Ignoring the named property map: %s", namesErr)
	}

	b := &builder{
		file:    file,
		names:   names,
		options: d.options,
		logger:  d.logger,
		tree:    &tree{},
	}

	queue := []job{{
		storage:  file.Root(),
		kind:     mapi.TopLevelMessage,
		parent:   -1,
		codepage: d.options.Codepage,
	}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		pending, err := b.message(current)

		if err != nil {
			if current.parent < 0 {
				return nil, err
			}

			attachment := &b.tree.attachments[current.parent]
			attachment.Kind = AttachmentInvalid
			attachment.Err = err
			attachment.message = -1

			b.logger.WithField("attachment", attachment.Index).Warnf("Embedded message is invalid: %s", err)

			continue
		}

		queue = append(queue, pending...)
	}

	root := &b.tree.messages[0]

	if namesErr != nil {
		root.Issues = append(root.Issues, namesErr)
	}

	return root, nil
}

// message decodes one message storage with its recipients and attachments.
// It returns the embedded messages still to be built.
func (b *builder) message(current job) ([]job, error) {
	decoder := &mapi.Decoder{
		File:     b.file,
		Names:    b.names,
		Codepage: current.codepage,
		Logger:   b.logger,
	}

	properties, err := decoder.Decode(current.storage, current.kind)

	if err != nil {
		return nil, err
	}

	message := Message{
		tree:       b.tree,
		index:      len(b.tree.messages),
		parent:     current.parent,
		depth:      current.depth,
		properties: properties,
	}

	message.readProperties(properties)
	decoder.Codepage = properties.Codepage

	for _, storage := range sortedChildren(current.storage, mapi.RecipientPrefix, b.logger) {
		recipientProperties, err := decoder.Decode(storage.entry, mapi.RecipientStorage)

		if err != nil {
			b.logger.WithField("recipient", storage.index).Warnf("Skipping recipient: %s", err)
			message.Issues = append(message.Issues, eris.Wrapf(err, "recipient %d", storage.index))

			continue
		}

		message.recipients = append(message.recipients, newRecipient(recipientProperties))
	}

	if message.Sender.IsEmpty() || len(message.missingRoles()) > 0 {
		message.applyHeaderFallback(properties.Text(mapi.PidTagTransportMessageHeaders), b.logger)
	}

	var pending []job

	for _, storage := range sortedChildren(current.storage, mapi.AttachmentPrefix, b.logger) {
		index := len(b.tree.attachments)
		attachment, embedded := b.attachment(decoder, storage, message.index, current.depth)

		b.tree.attachments = append(b.tree.attachments, attachment)
		message.attachments = append(message.attachments, index)

		if embedded != nil {
			pending = append(pending, job{
				storage:  embedded,
				kind:     mapi.EmbeddedMessage,
				parent:   index,
				depth:    current.depth + 1,
				codepage: properties.Codepage,
			})
		}
	}

	b.tree.messages = append(b.tree.messages, message)

	if current.parent >= 0 {
		b.tree.attachments[current.parent].message = message.index
	}

	return pending, nil
}

// attachment decodes one attachment storage. For embedded messages it also
// returns the storage still to be built.
func (b *builder) attachment(decoder *mapi.Decoder, storage indexedEntry, owner int, depth int) (Attachment, *cfb.Entry) {
	logger := b.logger.WithField("attachment", storage.index)
	attachment := Attachment{
		Index:   storage.index,
		tree:    b.tree,
		owner:   owner,
		message: -1,
	}

	properties, err := decoder.Decode(storage.entry, mapi.AttachmentStorage)

	if err != nil {
		logger.Warnf("Attachment is invalid: %s", err)
		attachment.Kind = AttachmentInvalid
		attachment.Err = err

		return attachment, nil
	}

	attachment.properties = properties
	attachment.FileName = properties.Text(mapi.PidTagAttachFilename)
	attachment.LongFileName = properties.Text(mapi.PidTagAttachLongFilename)
	attachment.DisplayName = properties.Text(mapi.PidTagDisplayName)
	attachment.Extension = properties.Text(mapi.PidTagAttachExtension)
	attachment.ContentID = strings.Trim(properties.Text(mapi.PidTagAttachContentID), "<>")
	attachment.ContentLocation = properties.Text(mapi.PidTagAttachContentLocation)
	attachment.MimeType = properties.Text(mapi.PidTagAttachMimeTag)
	attachment.Hidden, _ = properties.Bool(mapi.PidTagAttachmentHidden)

	if method, ok := properties.Int(mapi.PidTagAttachMethod); ok {
		attachment.Method = int32(method)
	}

	value, _ := properties.Get(mapi.PidTagAttachDataBinary)
	object, isObject := value.Object()

	// Some writers omit the PtypObject record but still store the sub-storage.
	if !isObject && attachment.Method == mapi.AttachEmbeddedMessage {
		if child := storage.entry.Child(mapi.NewTag(mapi.PidTagAttachDataBinary, mapi.PtypObject).StreamName()); child != nil {
			object, isObject = child, true
		}
	}

	switch {
	case attachment.Method == mapi.AttachEmbeddedMessage:
		if !isObject || !object.IsStorage() {
			attachment.Kind = AttachmentInvalid
			attachment.Err = eris.Wrapf(mapi.ErrPropertyStreamMissing, "attachment %d has no embedded message storage", storage.index)

			return attachment, nil
		}

		if depth+1 > b.options.MaxDepth {
			logger.Warnf("Embedded message at depth %d exceeds the limit of %d", depth+1, b.options.MaxDepth)
			attachment.Kind = AttachmentInvalid
			attachment.Err = eris.Wrapf(ErrNestingTooDeep, "attachment %d at depth %d, limit %d", storage.index, depth+1, b.options.MaxDepth)

			return attachment, nil
		}

		attachment.Kind = AttachmentEmbeddedMessage

		return attachment, object
	case isObject:
		// OLE objects keep their data in a CONTENTS stream.
		if contents := object.Child(mapi.AttachObjectStream); contents != nil && contents.IsStream() {
			data, err := b.file.ReadStream(contents)

			if err != nil {
				logger.Warnf("Attachment is invalid: %s", err)
				attachment.Kind = AttachmentInvalid
				attachment.Err = eris.Wrapf(err, "attachment %d", storage.index)

				return attachment, nil
			}

			attachment.Data = data
		}
	default:
		attachment.Data, _ = value.Bytes()
	}

	attachment.Kind = AttachmentFile

	return attachment, nil
}

// readProperties copies the message properties into the typed fields.
func (m *Message) readProperties(properties *mapi.Properties) {
	m.Subject = properties.Text(mapi.PidTagSubject)
	m.MessageClass = properties.Text(mapi.PidTagMessageClass)
	m.Type = Classify(m.MessageClass)
	m.InternetMessageID = strings.Trim(strings.TrimSpace(properties.Text(mapi.PidTagInternetMessageID)), "<>")
	m.SentOn, _ = properties.Time(mapi.PidTagClientSubmitTime)
	m.ReceivedOn, _ = properties.Time(mapi.PidTagMessageDeliveryTime)
	m.Importance = ImportanceNormal

	if importance, ok := properties.Int(mapi.PidTagImportance); ok && importance >= 0 && importance <= 2 {
		m.Importance = Importance(importance)
	}

	m.Sender = Address{
		DisplayName: properties.Text(mapi.PidTagSenderName),
		Email:       properties.Text(mapi.PidTagSenderEmailAddress),
		AddressType: properties.Text(mapi.PidTagSenderAddressType),
		SMTPAddress: properties.Text(mapi.PidTagSenderSMTPAddress),
	}
	m.SentRepresenting = Address{
		DisplayName: properties.Text(mapi.PidTagSentRepresentingName),
		Email:       properties.Text(mapi.PidTagSentRepresentingEmailAddress),
		AddressType: properties.Text(mapi.PidTagSentRepresentingAddressType),
		SMTPAddress: properties.Text(mapi.PidTagSentRepresentingSMTPAddress),
	}

	m.BodyText = properties.Text(mapi.PidTagBody)
	m.BodyHTML = htmlBody(properties)
	m.readRTF(properties)

	if keywords, ok := properties.Named(mapi.PidNameKeywords); ok {
		m.Categories, _ = keywords.Texts()
	}

	m.readFlag(properties)
	m.readTask(properties)
	m.readAppointment(properties)
}

// htmlBody returns PidTagHTML, which is usually binary in the internet code page.
func htmlBody(properties *mapi.Properties) string {
	value, ok := properties.Get(mapi.PidTagHTML)

	if !ok {
		return ""
	}

	if text, ok := value.Text(); ok {
		return text
	}

	data, ok := value.Bytes()

	if !ok {
		return ""
	}

	codepage := properties.Codepage

	if internet, ok := properties.Int(mapi.PidTagInternetCodepage); ok && internet > 0 {
		codepage = int(internet)
	}

	return mapi.DecodeString8(data, codepage)
}

func (m *Message) readRTF(properties *mapi.Properties) {
	compressed, ok := properties.Bytes(mapi.PidTagRtfCompressed)

	if !ok || len(compressed) == 0 {
		return
	}

	body, err := rtf.Decompress(compressed)

	if err != nil {
		m.Issues = append(m.Issues, eris.Wrap(err, "failed to decompress the RTF body"))
		return
	}

	if err := rtf.Verify(compressed); err != nil {
		m.Issues = append(m.Issues, err)
	}

	m.BodyRTF = body
}

func (m *Message) readFlag(properties *mapi.Properties) {
	var flag Flag

	found := false

	if request, ok := properties.Named(mapi.PidLidFlagRequest); ok {
		flag.Request, _ = request.Text()
		found = true
	}

	if status, ok := properties.Int(mapi.PidTagFlagStatus); ok {
		flag.Status = int32(status)
		flag.Completed = status == flagComplete
		found = true
	}

	if completed, ok := properties.Time(mapi.PidTagFlagCompleteTime); ok {
		flag.CompleteTime = completed
		found = true
	}

	if found {
		m.Flag = &flag
	}
}

// flagComplete is the PidTagFlagStatus of a completed follow up.
const flagComplete = 1

func (m *Message) readTask(properties *mapi.Properties) {
	var task Task

	found := false

	if value, ok := properties.Named(mapi.PidLidTaskStatus); ok {
		status, _ := value.Int()
		task.Status = int32(status)
		found = true
	}

	if value, ok := properties.Named(mapi.PidLidPercentComplete); ok {
		task.PercentComplete, _ = value.Float()
		found = true
	}

	for _, field := range []struct {
		key    mapi.NamedKey
		target *time.Time
	}{
		{mapi.PidLidTaskStartDate, &task.StartDate},
		{mapi.PidLidTaskDueDate, &task.DueDate},
		{mapi.PidLidTaskDateCompleted, &task.DateCompleted},
	} {
		if value, ok := properties.Named(field.key); ok {
			*field.target, _ = value.Time()
			found = true
		}
	}

	if value, ok := properties.Named(mapi.PidLidTaskComplete); ok {
		task.Complete, _ = value.Bool()
		found = true
	}

	if found {
		m.Task = &task
	}
}

func (m *Message) readAppointment(properties *mapi.Properties) {
	var appointment Appointment

	found := false

	if value, ok := properties.Named(mapi.PidLidLocation); ok {
		appointment.Location, _ = value.Text()
		found = true
	}

	if value, ok := properties.Named(mapi.PidLidAppointmentStart); ok {
		appointment.Start, _ = value.Time()
		found = true
	}

	if value, ok := properties.Named(mapi.PidLidAppointmentEnd); ok {
		appointment.End, _ = value.Time()
		found = true
	}

	if value, ok := properties.Named(mapi.PidLidAppointmentAllDay); ok {
		appointment.AllDay, _ = value.Bool()
		found = true
	}

	if value, ok := properties.Named(mapi.PidLidRecurrenceType); ok {
		recurrence, _ := value.Int()
		appointment.RecurrenceType = int32(recurrence)
		found = true
	}

	if value, ok := properties.Named(mapi.PidLidRecurrencePattern); ok {
		appointment.RecurrencePattern, _ = value.Text()
		found = true
	}

	if found {
		m.Appointment = &appointment
	}
}

// missingRoles returns the recipient roles without a native recipient.
func (m *Message) missingRoles() map[RecipientRole]bool {
	missing := map[RecipientRole]bool{RoleTo: true, RoleCc: true, RoleBcc: true}

	for _, recipient := range m.recipients {
		delete(missing, recipient.Role)
	}

	return missing
}

// applyHeaderFallback fills empty sender, recipient and envelope fields from
// the transport headers. Recipients are filled per role, so native To
// recipients do not hide the Cc and Bcc lists of the headers.
func (m *Message) applyHeaderFallback(raw string, logger logrus.FieldLogger) {
	header := mailheader.Parse(raw)

	if header.IsEmpty() {
		return
	}

	for _, problem := range header.Problems {
		logger.Debugf("Transport headers: %s", problem)
	}

	m.Headers = header

	if m.Sender.IsEmpty() && len(header.From) > 0 {
		m.Sender = Address{
			DisplayName: header.From[0].Name,
			Email:       header.From[0].Address,
			AddressType: "SMTP",
			SMTPAddress: header.From[0].Address,
		}
	}

	missing := m.missingRoles()

	for _, list := range []struct {
		addresses []*mail.Address
		role      RecipientRole
	}{
		{header.To, RoleTo},
		{header.Cc, RoleCc},
		{header.Bcc, RoleBcc},
	} {
		if !missing[list.role] {
			continue
		}

		for _, address := range list.addresses {
			m.recipients = append(m.recipients, Recipient{
				Address: Address{
					DisplayName: address.Name,
					Email:       address.Address,
					AddressType: "SMTP",
					SMTPAddress: address.Address,
				},
				Role: list.role,
			})
		}
	}

	if m.Subject == "" {
		m.Subject = header.Subject
	}

	if m.SentOn.IsZero() {
		m.SentOn = header.Date
	}

	if m.InternetMessageID == "" {
		m.InternetMessageID = header.MessageID
	}
}

func newRecipient(properties *mapi.Properties) Recipient {
	recipient := Recipient{
		Address: Address{
			DisplayName: properties.Text(mapi.PidTagDisplayName),
			Email:       properties.Text(mapi.PidTagEmailAddress),
			AddressType: properties.Text(mapi.PidTagAddressType),
			SMTPAddress: properties.Text(mapi.PidTagSMTPAddress),
		},
		Role: RoleTo,
	}

	if recipientType, ok := properties.Int(mapi.PidTagRecipientType); ok {
		switch int32(recipientType) & 0xF {
		case mapi.RecipientCc:
			recipient.Role = RoleCc
		case mapi.RecipientBcc:
			recipient.Role = RoleBcc
		}
	}

	return recipient
}

// indexedEntry is a recipient or attachment storage with its index suffix.
type indexedEntry struct {
	entry *cfb.Entry
	index uint32
}

// sortedChildren returns the storages of parent named prefix followed by a
// hexadecimal index, ordered by that index.
func sortedChildren(parent *cfb.Entry, prefix string, logger logrus.FieldLogger) []indexedEntry {
	var children []indexedEntry

	for _, child := range parent.Children() {
		if !child.IsStorage() || len(child.Name) <= len(prefix) || !strings.EqualFold(child.Name[:len(prefix)], prefix) {
			continue
		}

		index, err := strconv.ParseUint(child.Name[len(prefix):], 16, 32)

		if err != nil {
			logger.Debugf("Ignoring storage %q with a malformed index", child.Name)
			continue
		}

		children = append(children, indexedEntry{entry: child, index: uint32(index)})
	}

	sort.SliceStable(children, func(i, j int) bool {
		return children[i].index < children[j].index
	})

	return children
}
