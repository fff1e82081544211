// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// RotationSchema is used to identify the log files that need to be rotated
	RotationSchema = "rotate"

	_defaultLogLevel      = "info"
	_defaultLogFormat     = "json"
	_defaultRotateMaxSize = 100
)

var _registerRotation sync.Once

// Log is the configuration for logging, including log rotation.
type Log struct {
	Level          string   `mapstructure:"level"`
	Format         string   `mapstructure:"format"`
	Output         []string `mapstructure:"output"`
	EnableRotation bool     `mapstructure:"enable-rotation"`
	Rotate         Rotate   `mapstructure:"rotate"`

	level zapcore.Level
}

// Rotate is a copy of the configuration section in lumberjack.Logger
type Rotate struct {
	// MaxSize is the maximum size in megabytes of the log file before it gets
	// rotated.
	MaxSize int `mapstructure:"max-size"`

	// MaxAge is the maximum number of days to retain old log files. The
	// default is not to remove old log files based on age.
	MaxAge int `mapstructure:"max-age"`

	// MaxBackups is the maximum number of old log files to retain. The
	// default is to retain all of them.
	MaxBackups int `mapstructure:"max-backups"`

	// LocalTime names backup files with the local time instead of UTC.
	LocalTime bool `mapstructure:"local-time"`

	// Compress gzips rotated log files.
	Compress bool `mapstructure:"compress"`
}

// Adjust fills in defaults and parses the level.
func (l *Log) Adjust() error {
	if l.Level == "" {
		l.Level = _defaultLogLevel
	}
	if l.Format == "" {
		l.Format = _defaultLogFormat
	}
	if len(l.Output) == 0 {
		l.Output = []string{"stderr"}
	}
	if l.Rotate.MaxSize <= 0 {
		l.Rotate.MaxSize = _defaultRotateMaxSize
	}
	if l.Format != "json" && l.Format != "console" {
		return errors.Errorf("unknown log format %q", l.Format)
	}
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return errors.WithMessage(err, "parse log level")
	}
	l.level = level
	return nil
}

// Logger creates a logger based on the configuration. Adjust must be called
// first.
func (l *Log) Logger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(l.level)
	cfg.Encoding = l.Format
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = l.Output
	cfg.ErrorOutputPaths = []string{"stderr"}

	if l.EnableRotation {
		if err := registerRotation(); err != nil {
			return nil, errors.WithMessage(err, "setup rotation")
		}
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.WithMessage(err, "get current directory")
		}
		cfg.OutputPaths = l.addRotationSchema(cfg.OutputPaths, wd)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.WithMessage(err, "build logger")
	}
	return logger, nil
}

type rotation struct {
	*lumberjack.Logger
}

// Sync implements zap.Sink. The remaining methods are implemented
// by the embedded *lumberjack.Logger.
func (rotation) Sync() error {
	return nil
}

// registerRotation registers the rotation sink once per process. Each sink
// URL carries its own rotation settings in the query string.
func registerRotation() error {
	var err error
	_registerRotation.Do(func() {
		err = zap.RegisterSink(RotationSchema, newRotationSink)
	})
	return err
}

func newRotationSink(u *url.URL) (zap.Sink, error) {
	query := u.Query()
	intParam := func(name string) int {
		n, _ := strconv.Atoi(query.Get(name))
		return n
	}
	return rotation{&lumberjack.Logger{
		Filename:   u.Path,
		MaxSize:    intParam("max-size"),
		MaxAge:     intParam("max-age"),
		MaxBackups: intParam("max-backups"),
		LocalTime:  query.Get("local-time") == "true",
		Compress:   query.Get("compress") == "true",
	}}, nil
}

func (l *Log) addRotationSchema(paths []string, wd string) []string {
	query := url.Values{}
	query.Set("max-size", strconv.Itoa(l.Rotate.MaxSize))
	query.Set("max-age", strconv.Itoa(l.Rotate.MaxAge))
	query.Set("max-backups", strconv.Itoa(l.Rotate.MaxBackups))
	query.Set("local-time", strconv.FormatBool(l.Rotate.LocalTime))
	query.Set("compress", strconv.FormatBool(l.Rotate.Compress))

	results := make([]string, len(paths))
	for i, path := range paths {
		switch path {
		case "stderr", "stdout":
			results[i] = path
		default:
			// add schema for file paths
			if !filepath.IsAbs(path) {
				path = filepath.Join(wd, path)
			}
			results[i] = (&url.URL{Scheme: RotationSchema, Path: path, RawQuery: query.Encode()}).String()
		}
	}
	return results
}
