// Package msgexport
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package msgexport

import (
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Logger defines our logger.
var Logger = logrus.New()

// ConfigureLogger sets the level and the formatter ("text" or "json") of Logger.
func ConfigureLogger(level string, format string) error {
	parsedLevel, err := logrus.ParseLevel(level)

	if err != nil {
		return eris.Wrapf(err, "invalid log level %q", level)
	}

	Logger.SetLevel(parsedLevel)

	switch format {
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return eris.Errorf("invalid log format %q", format)
	}

	return nil
}
