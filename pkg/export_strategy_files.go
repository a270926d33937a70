// Package msgexport
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgexport

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mooijtech/go-msg-export/pkg/msg"
	"github.com/rotisserie/eris"
)

// Body file names written by the files strategy.
const (
	bodyFileHTML = "message.html"
	bodyFileText = "message.txt"
	bodyFileRTF  = "message.rtf"
)

// ExportStrategyFiles implements exporting to plain files.
// Every input file becomes a directory holding the body and the attachments;
// embedded messages become sub-directories.
type ExportStrategyFiles struct {
	names nameSet
}

func (exportStrategyFiles *ExportStrategyFiles) Name() string {
	return "files"
}

func (exportStrategyFiles *ExportStrategyFiles) Export(message *msg.Message, inputFile string, exportContext ExportContext) error {
	directory := filepath.Join(exportContext.OutputDirectory, exportStrategyFiles.names.unique(inputBaseName(inputFile)))

	return writeFiles(message, directory, exportContext)
}

// writeFiles writes message into directory. Nesting is bounded by the
// decoder's depth limit.
func writeFiles(message *msg.Message, directory string, exportContext ExportContext) error {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return eris.Wrapf(err, "failed to create %s", directory)
	}

	names := newNameSet(bodyFileHTML, bodyFileText, bodyFileRTF)
	links := make(map[string]string)

	type nestedMessage struct {
		message   *msg.Message
		directory string
	}

	var nested []nestedMessage

	for _, attachment := range message.Attachments() {
		switch attachment.Kind {
		case msg.AttachmentInvalid:
			Logger.Warnf("Skipping invalid attachment %d: %s", attachment.Index, attachment.Err)
		case msg.AttachmentEmbeddedMessage:
			name := attachment.Name()

			if name == "" {
				name = attachment.Message().Subject
			}

			nested = append(nested, nestedMessage{
				message:   attachment.Message(),
				directory: filepath.Join(directory, names.unique(SafeFileName(name, fmt.Sprintf("message-%d", attachment.Index)))),
			})
		default:
			name := names.unique(attachmentFileName(attachment))

			if err := os.WriteFile(filepath.Join(directory, name), attachment.Data, 0644); err != nil {
				return eris.Wrapf(err, "failed to write attachment %s", name)
			}

			if attachment.ContentID != "" {
				links["cid:"+attachment.ContentID] = url.PathEscape(name)
			}

			if attachment.ContentLocation != "" {
				links[attachment.ContentLocation] = url.PathEscape(name)
			}
		}
	}

	name, body := bodyFile(message, exportContext, links)

	if name == "" {
		Logger.Warnf("Empty message body for message: %q", message.Subject)
	} else if err := os.WriteFile(filepath.Join(directory, name), body, 0644); err != nil {
		return eris.Wrapf(err, "failed to write %s", name)
	}

	for _, child := range nested {
		if err := writeFiles(child.message, child.directory, exportContext); err != nil {
			Logger.Warnf("Failed to write embedded message to %s, skipping: %s", child.directory, err)
		}
	}

	return nil
}

// bodyFile picks the body to write: HTML with its references pointing to the
// written attachments, then text, then RTF.
func bodyFile(message *msg.Message, exportContext ExportContext, links map[string]string) (string, []byte) {
	switch {
	case exportContext.IsOnlyPlaintextBody:
		if message.BodyText == "" {
			return "", nil
		}

		return bodyFileText, []byte(message.BodyText)
	case message.BodyHTML != "":
		return bodyFileHTML, []byte(rewriteLinks(message.BodyHTML, links))
	case message.BodyText != "":
		return bodyFileText, []byte(message.BodyText)
	case len(message.BodyRTF) > 0:
		return bodyFileRTF, message.BodyRTF
	default:
		return "", nil
	}
}

// rewriteLinks replaces cid: and content location references with file names.
func rewriteLinks(html string, links map[string]string) string {
	if len(links) == 0 {
		return html
	}

	references := make([]string, 0, len(links))

	for reference := range links {
		references = append(references, reference)
	}

	// Longer references first, so "cid:a1" never replaces part of "cid:a10".
	sort.Slice(references, func(i, j int) bool {
		if len(references[i]) != len(references[j]) {
			return len(references[i]) > len(references[j])
		}

		return references[i] < references[j]
	})

	pairs := make([]string, 0, len(links)*2)

	for _, reference := range references {
		pairs = append(pairs, reference, links[reference])
	}

	return strings.NewReplacer(pairs...).Replace(html)
}
