// Package msg
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msg

import "strings"

// messageClasses is ordered so longer classes match before their prefixes.
var messageClasses = []struct {
	components  []string
	messageType MessageType
}{
	{[]string{"IPM", "Note"}, TypeEmail},
	{[]string{"IPM", "Appointment"}, TypeAppointment},
	{[]string{"IPM", "Schedule", "Meeting", "Resp"}, TypeAppointmentResponse},
	{[]string{"IPM", "Schedule", "Meeting"}, TypeAppointmentRequest},
	{[]string{"IPM", "Task"}, TypeTask},
	{[]string{"IPM", "StickyNote"}, TypeStickyNote},
}

// Classify returns the message type of a message class such as
// "IPM.Schedule.Meeting.Request". Classes are matched case insensitively on
// whole dot separated components.
func Classify(messageClass string) MessageType {
	components := strings.Split(strings.TrimSpace(messageClass), ".")

	for _, class := range messageClasses {
		if len(components) < len(class.components) {
			continue
		}

		matches := true

		for i, component := range class.components {
			if !strings.EqualFold(components[i], component) {
				matches = false
				break
			}
		}

		if matches {
			return class.messageType
		}
	}

	return TypeUnknown
}
