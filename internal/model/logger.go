package model

//
// Logger
//

// Logger is the narrow logging interface the pipeline stages accept.
// It is out of the box compatible with `log.Log` in `apex/log`. Only
// the formatting variants appear: every stage message interpolates a
// country, covariate, or count.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...interface{})

	// Infof formats and emits an informational message.
	Infof(format string, v ...interface{})

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...interface{})
}

// DiscardLogger is the default logger that discards its input.
var DiscardLogger Logger = logDiscarder{}

// logDiscarder is a logger that discards its input.
type logDiscarder struct{}

// Debugf implements Logger.Debugf.
func (logDiscarder) Debugf(format string, v ...interface{}) {}

// Infof implements Logger.Infof.
func (logDiscarder) Infof(format string, v ...interface{}) {}

// Warnf implements Logger.Warnf.
func (logDiscarder) Warnf(format string, v ...interface{}) {}
