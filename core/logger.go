package core

// Logger is any leveled logger the app can report through.
// Implementations may inspect args for well-known types (eg. an actor
// to attach to the report) and treat the rest as extra context.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
