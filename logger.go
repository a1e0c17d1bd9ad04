// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var logger *logrus.Logger = nil

const MaxLogLevel = logrus.TraceLevel

func init() {
	logger = logrus.New()
	logger.SetOutput(colorable.NewColorableStdout())
	logger.SetFormatter(&prefixed.TextFormatter{
		ForceColors:     true,
		ForceFormatting: true,
	})

	if level := os.Getenv("WLINK_LOG"); level != "" {
		if parsed, err := logrus.ParseLevel(level); err == nil {
			logger.SetLevel(parsed)
		}
	}
}

// SetLogger replaces the package-wide logger, e.g. to redirect output
// into the CLI's own sink or a test harness.
func SetLogger(loggerInstance *logrus.Logger) {
	logger = loggerInstance
}

// SetLogLevel adjusts the package-wide logger's verbosity, e.g. from a
// CLI --verbose flag.
func SetLogLevel(level logrus.Level) {
	logger.SetLevel(level)
}
