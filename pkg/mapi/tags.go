// Package mapi
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package mapi

// Property ids used by the message model.
const (
	PidTagImportance                   uint16 = 0x0017
	PidTagMessageClass                 uint16 = 0x001A
	PidTagSubject                      uint16 = 0x0037
	PidTagClientSubmitTime             uint16 = 0x0039
	PidTagSentRepresentingName         uint16 = 0x0042
	PidTagSentRepresentingAddressType  uint16 = 0x0064
	PidTagSentRepresentingEmailAddress uint16 = 0x0065
	PidTagConversationTopic            uint16 = 0x0070
	PidTagTransportMessageHeaders      uint16 = 0x007D
	PidTagRecipientType                uint16 = 0x0C15
	PidTagSenderName                   uint16 = 0x0C1A
	PidTagSenderAddressType            uint16 = 0x0C1E
	PidTagSenderEmailAddress           uint16 = 0x0C1F
	PidTagDisplayBcc                   uint16 = 0x0E02
	PidTagDisplayCc                    uint16 = 0x0E03
	PidTagDisplayTo                    uint16 = 0x0E04
	PidTagMessageDeliveryTime          uint16 = 0x0E06
	PidTagMessageFlags                 uint16 = 0x0E07
	PidTagMessageSize                  uint16 = 0x0E08
	PidTagBody                         uint16 = 0x1000
	PidTagRtfCompressed                uint16 = 0x1009
	PidTagHTML                         uint16 = 0x1013
	PidTagInternetMessageID            uint16 = 0x1035
	PidTagFlagStatus                   uint16 = 0x1090
	PidTagFlagCompleteTime             uint16 = 0x1091
	PidTagDisplayName                  uint16 = 0x3001
	PidTagAddressType                  uint16 = 0x3002
	PidTagEmailAddress                 uint16 = 0x3003
	PidTagCreationTime                 uint16 = 0x3007
	PidTagLastModificationTime         uint16 = 0x3008
	PidTagSMTPAddress                  uint16 = 0x39FE
	PidTagAttachDataBinary             uint16 = 0x3701
	PidTagAttachExtension              uint16 = 0x3703
	PidTagAttachFilename               uint16 = 0x3704
	PidTagAttachMethod                 uint16 = 0x3705
	PidTagAttachLongFilename           uint16 = 0x3707
	PidTagAttachRendering              uint16 = 0x3709
	PidTagAttachMimeTag                uint16 = 0x370E
	PidTagAttachContentID              uint16 = 0x3712
	PidTagAttachContentLocation        uint16 = 0x3713
	PidTagAttachFlags                  uint16 = 0x3714
	PidTagInternetCodepage             uint16 = 0x3FDE
	PidTagMessageCodepage              uint16 = 0x3FFD
	PidTagSenderSMTPAddress            uint16 = 0x5D01
	PidTagSentRepresentingSMTPAddress  uint16 = 0x5D02
	PidTagAttachmentHidden             uint16 = 0x7FFE
)

// Attachment methods (PidTagAttachMethod).
const (
	AttachByValue         int32 = 1
	AttachByReference     int32 = 2
	AttachByRefResolve    int32 = 3
	AttachByRefOnly       int32 = 4
	AttachEmbeddedMessage int32 = 5
	AttachOLE             int32 = 6
)

// Recipient types (PidTagRecipientType).
const (
	RecipientTo  int32 = 1
	RecipientCc  int32 = 2
	RecipientBcc int32 = 3
)

// AttachObjectStream is the stream holding the data of an OLE attachment.
const AttachObjectStream = "CONTENTS"
