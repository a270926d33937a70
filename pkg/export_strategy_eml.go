// go-msg-export is a command-line interface and library for exporting Outlook .msg files.
//
// Copyright (C) 2022  Marten Mooij
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package msgexport

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/mooijtech/go-msg-export/pkg/msg"
	"github.com/rotisserie/eris"
)

// ExportStrategyEML implements exporting to EML.
// Every input file becomes <output>/<input name>.eml.
type ExportStrategyEML struct {
	names nameSet
}

func (exportStrategyEML *ExportStrategyEML) Name() string {
	return "eml"
}

func (exportStrategyEML *ExportStrategyEML) Export(message *msg.Message, inputFile string, exportContext ExportContext) error {
	if err := os.MkdirAll(exportContext.OutputDirectory, 0755); err != nil {
		return eris.Wrapf(err, "failed to create %s", exportContext.OutputDirectory)
	}

	outputPath := filepath.Join(exportContext.OutputDirectory, exportStrategyEML.names.unique(inputBaseName(inputFile)+".eml"))
	outputFile, err := os.Create(outputPath)

	if err != nil {
		return eris.Wrapf(err, "failed to create %s", outputPath)
	}

	writer := bufio.NewWriter(outputFile)

	if err := WriteMessage(writer, message, exportContext); err != nil {
		_ = outputFile.Close()
		return eris.Wrapf(err, "failed to write %s", outputPath)
	}

	if err := writer.Flush(); err != nil {
		_ = outputFile.Close()
		return eris.Wrapf(err, "failed to write %s", outputPath)
	}

	return outputFile.Close()
}
