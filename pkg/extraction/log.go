package extraction

import (
	"fmt"
	"strings"
)

// Logger is satisfied by *logrus.Logger and *logrus.Entry.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// leveledLogger adapts Logger to retryablehttp.LeveledLogger.
type leveledLogger struct{ l Logger }

func (a leveledLogger) Error(msg string, kv ...interface{}) { a.l.Errorf("%s%s", msg, pairs(kv)) }
func (a leveledLogger) Info(msg string, kv ...interface{})  { a.l.Debugf("%s%s", msg, pairs(kv)) }
func (a leveledLogger) Debug(msg string, kv ...interface{}) { a.l.Debugf("%s%s", msg, pairs(kv)) }
func (a leveledLogger) Warn(msg string, kv ...interface{})  { a.l.Warnf("%s%s", msg, pairs(kv)) }

func pairs(kv []interface{}) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
