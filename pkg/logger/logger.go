package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	std = newLogger("development", "info")
)

func newLogger(env, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if env == "production" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Init replaces the process logger. JSON output in production, text otherwise.
func Init(env, level string) *logrus.Logger {
	l := newLogger(env, level)
	mu.Lock()
	std = l
	mu.Unlock()
	return l
}

func L() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// With returns an entry tagged with a component name, e.g. "calls" or "ws".
func With(component string) *logrus.Entry {
	return L().WithField("component", component)
}
