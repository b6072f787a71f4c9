package tools

import (
	"github.com/sirupsen/logrus"
)

// Logger hands out per-subsystem logrus loggers that share output,
// formatting and level with a base logger. Each derived logger tags its
// entries with who=<name> so interleaved service logs stay readable.
type Logger struct {
	base *logrus.Logger
}

func NewLogger(base *logrus.Logger) *Logger {
	if base == nil {
		base = logrus.New()
	}
	return &Logger{base: base}
}

func (l *Logger) New(name string) *logrus.Logger {
	hooks := make(logrus.LevelHooks)
	for level, hh := range l.base.Hooks {
		hooks[level] = append([]logrus.Hook(nil), hh...)
	}

	derived := &logrus.Logger{
		Out:          l.base.Out,
		Formatter:    l.base.Formatter,
		Hooks:        hooks,
		Level:        l.base.Level,
		ExitFunc:     l.base.ExitFunc,
		ReportCaller: l.base.ReportCaller,
	}
	derived.AddHook(Who{Name: name})
	return derived
}

type Who struct {
	Name string
}

func (w Who) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (w Who) Fire(entry *logrus.Entry) error {
	entry.Data["who"] = w.Name
	return nil
}
