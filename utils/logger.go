/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Logger is the named logger handed out by NewLogger.
type Logger = logrus.Logger

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
	defaultLevel     = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	consoleOutput    io.Writer = os.Stdout
)

// ConfigureConsoleLogFormat switches loggers created afterwards between the
// "text" and "json" formats.
func ConfigureConsoleLogFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

// ConfigureConsoleOutput redirects loggers created afterwards.
func ConfigureConsoleOutput(w io.Writer) {
	if w != nil {
		consoleOutput = w
	}
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if l, ok := loggerRegistry[name]; ok {
		return l
	}

	l := logrus.New()
	l.SetOutput(consoleOutput)
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	if consoleLogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: defaultTimestampFormat,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		})
		l.AddHook(&nameHook{name: name})
	} else {
		l.SetFormatter(&Log4jColorFormatter{
			LoggerName:      name,
			TimestampFormat: defaultTimestampFormat,
			NameWidth:       10,
			CallerWidth:     25,
		})
	}
	loggerRegistry[name] = l
	return l
}

// nameHook stamps json records with the logger name.
type nameHook struct {
	name string
}

func (h *nameHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *nameHook) Fire(e *logrus.Entry) error {
	e.Data["logger"] = h.name
	return nil
}

func SetAllLoggersLevel(lvl logrus.Level) {
	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
	defaultLevel = lvl
}

// SetLoggerLevel changes the level of one named logger. It reports false when
// no logger with that name exists.
func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

func ConfigureLogLevel(levelStr string) {
	SetAllLoggersLevel(ParseLogLevel(levelStr))
}

// Log4jColorFormatter renders entries as
// "ts LEVEL pid - [main] name caller : message".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	NameWidth       int
	CallerWidth     int
}

var (
	faint   = color.New(color.Faint).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
)

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	ts := entry.Time.Format(tsFormat)
	lvl := levelColor(entry.Level)(fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String())))
	name := cyan(padLeft(limitRunes(f.LoggerName, f.NameWidth), f.NameWidth))

	caller := ""
	if entry.Caller != nil {
		fileLine := fmt.Sprintf("%s:%d", shortPath(entry.Caller.File), entry.Caller.Line)
		caller = faint(" " + padLeft(tailRunes(fileLine, f.CallerWidth), f.CallerWidth))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s - %s %s%s %s %s", ts, lvl, magenta(fmt.Sprintf("%-6d", os.Getpid())),
		magenta("[main]"), name, caller, faint(":"), entry.Message)
	for _, k := range sortedFieldKeys(entry.Data) {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func levelColor(level logrus.Level) func(a ...interface{}) string {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return color.New(color.FgBlue).SprintFunc()
	case logrus.InfoLevel:
		return color.New(color.FgGreen).SprintFunc()
	case logrus.WarnLevel:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgRed).SprintFunc()
	}
}

func sortedFieldKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shortPath keeps the parent directory and the file name.
func shortPath(p string) string {
	p = filepath.ToSlash(p)
	parts := strings.Split(p, "/")
	if len(parts) <= 2 {
		return p
	}
	return strings.Join(parts[len(parts)-2:], "/")
}

func padLeft(s string, width int) string {
	if width <= 0 {
		return s
	}
	return fmt.Sprintf("%*s", width, s)
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tailRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func EnvDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return def
		}
		return n
	}
	return def
}
