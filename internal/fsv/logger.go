package fsv

// Logger is the structured logging surface the engine writes to.
// Args are slog-style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// fieldLogger prepends a fixed set of key/value pairs to every call.
type fieldLogger struct {
	next   Logger
	fields []any
}

// WithFields returns a Logger that tags every record with kv.
func WithFields(l Logger, kv ...any) Logger {
	if fl, ok := l.(*fieldLogger); ok {
		return &fieldLogger{next: fl.next, fields: append(append([]any{}, fl.fields...), kv...)}
	}
	return &fieldLogger{next: l, fields: kv}
}

func (l *fieldLogger) args(args []any) []any {
	return append(append(make([]any, 0, len(l.fields)+len(args)), l.fields...), args...)
}

func (l *fieldLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.args(args)...) }
func (l *fieldLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.args(args)...) }
func (l *fieldLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.args(args)...) }
func (l *fieldLogger) Error(msg string, args ...any) { l.next.Error(msg, l.args(args)...) }
