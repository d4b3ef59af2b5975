package types

// Fields carries structured key/value pairs attached to a log event. The
// core never formats strings for the sink directly (spec §5: "callbacks
// never write to the sink directly" and §4.6 step 1: the poll driver is the
// only place events are translated into log records); it always goes
// through Logger with a Fields set so the sink can render them however it
// wants (text, JSON, a remote aggregator).
type Fields map[string]interface{}

// Logger is the structured logging capability the core requires. It stays
// a small interface (as the teacher's types.Logger does for its stdlib
// DefaultLogger) so the core has no direct dependency on whichever
// ecosystem logging library backs the default implementation.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)

	// WithFields returns a Logger that prepends fields to every subsequent
	// call, mirroring logrus.Entry.WithFields so the default implementation
	// can cheaply scope a logger to "peer_id", "transport", etc.
	WithFields(fields Fields) Logger
}

// NopLogger discards everything. Useful as a safe zero value and in tests
// that don't care about log output.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields)       {}
func (NopLogger) Info(string, Fields)        {}
func (NopLogger) Warn(string, Fields)        {}
func (NopLogger) Error(string, Fields)       {}
func (n NopLogger) WithFields(Fields) Logger { return n }
