// Package definition provides the default ambient-stack implementations
// the core's capability interfaces need but doesn't itself depend on,
// mirroring the teacher's pkg/mcast/definition package (a stdlib-backed
// DefaultLogger there; here, a structured logrus-backed one — see
// SPEC_FULL.md §10 and DESIGN.md).
package definition

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// DefaultLogger is the structured logging sink used when Config.Logger is
// left nil. It satisfies types.Logger without the core ever importing
// logrus directly.
type DefaultLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger builds a logrus-backed logger writing to stderr with
// text formatting, matching the teacher's DefaultLogger default
// destination (os.Stderr) while adding structured field support.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &DefaultLogger{entry: logrus.NewEntry(l)}
}

func toLogrusFields(f types.Fields) logrus.Fields {
	if len(f) == 0 {
		return nil
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (d *DefaultLogger) Debug(msg string, fields types.Fields) {
	d.entry.WithFields(toLogrusFields(fields)).Debug(msg)
}

func (d *DefaultLogger) Info(msg string, fields types.Fields) {
	d.entry.WithFields(toLogrusFields(fields)).Info(msg)
}

func (d *DefaultLogger) Warn(msg string, fields types.Fields) {
	d.entry.WithFields(toLogrusFields(fields)).Warn(msg)
}

func (d *DefaultLogger) Error(msg string, fields types.Fields) {
	d.entry.WithFields(toLogrusFields(fields)).Error(msg)
}

func (d *DefaultLogger) WithFields(fields types.Fields) types.Logger {
	return &DefaultLogger{entry: d.entry.WithFields(toLogrusFields(fields))}
}
