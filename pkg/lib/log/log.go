// Package log exposes the logger accepted by [lib.Config].
//
// Nothing is logged by default. Plug a logrus entry with [NewLogrus], or adapt any other
// logger implementing [Logger]:
//
//	logger := log.NewLogrus(logrus.NewEntry(logrus.StandardLogger()))
//	client, err := lib.New(ctx, lib.Config{FakeAPI: true, Logger: logger})
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/slok/opwatch/internal/log"
	loglogrus "github.com/slok/opwatch/internal/log/logrus"
)

// Logger is the structured logger used by every engine component.
//
// Components tag their lines with a "svc" value, pollers and services log at debug level
// on every tick so Debugf is usually the noisiest method.
type Logger = log.Logger

// Kv are structured logging key-value pairs.
type Kv = log.Kv

// Noop discards everything, it's the default logger.
var Noop = log.Noop

// NewLogrus returns a Logger backed by a logrus entry.
func NewLogrus(e *logrus.Entry) Logger {
	return loglogrus.NewLogrus(e)
}
