package types

// Logger is the narrow logging contract consumed by every clipcast
// component. The final sink is out of the core; DefaultLogger in the
// logging package is the reference implementation.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Panic(args ...interface{})
	Panicf(format string, args ...interface{})
	ToggleDebug(on bool)

	// WithFields returns a Logger that attaches the given structured
	// context to every subsequent call, mirroring logrus.Fields.
	WithFields(fields map[string]interface{}) Logger
}
