package bridge

import (
	"fmt"

	"github.com/xycloo/zephyr-go/env"
	"github.com/xycloo/zephyr-go/types"
)

// Logger writes guest log records through the host.
type Logger struct {
	e *env.Env
}

func NewLogger(e *env.Env) Logger {
	return Logger{e: e}
}

func (l Logger) Debug(message string, data []byte) error {
	return Log(l.e, types.LogDebug, message, data)
}

func (l Logger) Info(message string, data []byte) error {
	return Log(l.e, types.LogInfo, message, data)
}

func (l Logger) Warning(message string, data []byte) error {
	return Log(l.e, types.LogWarning, message, data)
}

func (l Logger) Error(message string, data []byte) error {
	return Log(l.e, types.LogError, message, data)
}

// Debugf formats a debug record without attached data.
func (l Logger) Debugf(format string, args ...any) error {
	return l.Debug(fmt.Sprintf(format, args...), nil)
}
