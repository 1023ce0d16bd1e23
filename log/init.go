package log

import (
	"github.com/tryfix/log"
)

// Logger gates the leveled outputs of the tryfix logger behind the verbose
// flag so that the interactive runner is not flooded with sync traces
type Logger struct {
	logEnabled bool
	log.Logger
}

func NewLogger(logEnabled bool, level string) *Logger {
	if level == `` {
		level = `TRACE`
	}

	return &Logger{
		logEnabled: logEnabled,
		Logger: log.Constructor.Log(
			log.WithColors(true),
			log.WithLevel(log.Level(level)),
			log.WithFilePath(true),
			log.WithSkipFrameCount(4),
		),
	}
}

func (l *Logger) Error(message interface{}, params ...interface{}) {
	if l.logEnabled {
		l.Logger.Error(message, params...)
	}
}

func (l *Logger) Warn(message interface{}, params ...interface{}) {
	if l.logEnabled {
		l.Logger.Warn(message, params...)
	}
}

func (l *Logger) Trace(message interface{}, params ...interface{}) {
	if l.logEnabled {
		l.Logger.Trace(message, params...)
	}
}

func (l *Logger) Debug(message interface{}, params ...interface{}) {
	if l.logEnabled {
		l.Logger.Debug(message, params...)
	}
}

func (l *Logger) Info(message interface{}, params ...interface{}) {
	if l.logEnabled {
		l.Logger.Info(message, params...)
	}
}
