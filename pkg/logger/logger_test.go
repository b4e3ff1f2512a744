package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInitFormatterByEnv(t *testing.T) {
	l := Init("production", "debug")
	_, isJSON := l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.Same(t, l, L())

	l = Init("development", "bogus")
	_, isText := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestWithComponent(t *testing.T) {
	e := With("calls")
	assert.Equal(t, "calls", e.Data["component"])
}
