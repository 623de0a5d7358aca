// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package logger

import (
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// Logger is the minimal structured logging interface used across the service.
type Logger interface {
	Debug(msg string, keyValuePairs ...any)
	Info(msg string, keyValuePairs ...any)
	Warn(msg string, keyValuePairs ...any)
	Error(msg string, keyValuePairs ...any)
	Flush() error
}

// mlogAdapter adapts mlog.Logger to the Logger interface
type mlogAdapter struct {
	logger *mlog.Logger
}

// NewMlogLogger wraps an already configured mlog.Logger
func NewMlogLogger(logger *mlog.Logger) Logger {
	return &mlogAdapter{logger: logger}
}

func (a *mlogAdapter) Debug(msg string, keyValuePairs ...any) {
	a.logger.Debug(msg, keyValuePairsToFields(keyValuePairs)...)
}

func (a *mlogAdapter) Info(msg string, keyValuePairs ...any) {
	a.logger.Info(msg, keyValuePairsToFields(keyValuePairs)...)
}

func (a *mlogAdapter) Warn(msg string, keyValuePairs ...any) {
	a.logger.Warn(msg, keyValuePairsToFields(keyValuePairs)...)
}

func (a *mlogAdapter) Error(msg string, keyValuePairs ...any) {
	a.logger.Error(msg, keyValuePairsToFields(keyValuePairs)...)
}

func (a *mlogAdapter) Flush() error {
	return a.logger.Flush()
}

// keyValuePairsToFields converts key-value pairs to mlog fields. Non-string keys and a
// trailing key without value are skipped.
func keyValuePairsToFields(keyValuePairs []any) []mlog.Field {
	fields := make([]mlog.Field, 0, len(keyValuePairs)/2)
	for i := 0; i < len(keyValuePairs)-1; i += 2 {
		key, ok := keyValuePairs[i].(string)
		if !ok {
			continue
		}
		value := keyValuePairs[i+1]
		if err, isErr := value.(error); isErr && err != nil {
			value = err.Error()
		}
		fields = append(fields, mlog.Any(key, value))
	}
	return fields
}

// New creates a console logger, optionally with debug output and a JSON log file.
// Standard library log output is redirected through the returned logger.
func New(enableDebug bool, logFile string) (Logger, error) {
	mlogger, err := newMlogLogger(enableDebug, logFile)
	if err != nil {
		return nil, err
	}
	return NewMlogLogger(mlogger), nil
}

func newMlogLogger(enableDebug bool, logFile string) (*mlog.Logger, error) {
	logger, err := mlog.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create new logger: %w", err)
	}

	levels := []mlog.Level{mlog.LvlInfo, mlog.LvlWarn, mlog.LvlError}
	if enableDebug {
		levels = append([]mlog.Level{mlog.LvlDebug}, levels...)
	}

	cfg := make(mlog.LoggerConfiguration)
	cfg["console"] = mlog.TargetCfg{
		Type:          "console",
		Levels:        levels,
		Format:        "plain",
		FormatOptions: json.RawMessage(`{"enable_color": false, "delim": " "}`),
		Options:       json.RawMessage(`{"out": "stderr"}`),
		MaxQueueSize:  1000,
	}

	if logFile != "" {
		options, err := json.Marshal(map[string]any{"compress": false, "filename": logFile})
		if err != nil {
			return nil, fmt.Errorf("failed to encode log file options: %w", err)
		}
		cfg["file"] = mlog.TargetCfg{
			Type:         "file",
			Levels:       levels,
			Format:       "json",
			Options:      options,
			MaxQueueSize: 1000,
		}
	}

	if err := logger.ConfigureTargets(cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to configure logger targets: %w", err)
	}

	logger.RedirectStdLog(mlog.LvlStdLog)

	return logger, nil
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Flush() error         { return nil }
