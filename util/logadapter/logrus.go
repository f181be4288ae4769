package logadapter

import (
	"github.com/sirupsen/logrus"

	"github.com/brambledb/bramble/util"
)

// Logrus wraps a *logrus.Logger to implement util.Logger.
type Logrus struct {
	logger *logrus.Logger
}

// NewLogrus adapts a logrus.Logger.
func NewLogrus(logger *logrus.Logger) util.Logger {
	return &Logrus{logger: logger}
}

func (l *Logrus) fields(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

func (l *Logrus) Debug(msg string, args ...any) {
	l.logger.WithFields(l.fields(args)).Debug(msg)
}

func (l *Logrus) Info(msg string, args ...any) {
	l.logger.WithFields(l.fields(args)).Info(msg)
}

func (l *Logrus) Warn(msg string, args ...any) {
	l.logger.WithFields(l.fields(args)).Warn(msg)
}

func (l *Logrus) Error(msg string, args ...any) {
	l.logger.WithFields(l.fields(args)).Error(msg)
}
