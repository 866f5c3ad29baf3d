package debug

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

var (
	// IsEnabled controls whether debug messages are output
	IsEnabled bool
	// CurrentLevel is the minimum level of messages to output
	CurrentLevel LogLevel
	logger       *log.Logger
	levelNames   = map[LogLevel]string{
		LevelDebug:   "DEBUG",
		LevelInfo:    "INFO",
		LevelWarning: "WARNING",
		LevelError:   "ERROR",
	}
	levelMap = map[string]LogLevel{
		"DEBUG":   LevelDebug,
		"INFO":    LevelInfo,
		"WARNING": LevelWarning,
		"ERROR":   LevelError,
	}
)

func init() {
	logger = log.New(os.Stdout, "", 0)
	Reinitialize()
}

// Log prints a message with the specified level if logging is enabled
func Log(level LogLevel, format string, v ...interface{}) {
	if !IsEnabled || level < CurrentLevel {
		return
	}

	// Caller of Debug/Info/Warning/Error, two frames up
	_, file, line, _ := runtime.Caller(2)
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}

	message := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	logger.Printf("[%s] [%s] [%s:%d] %s\n",
		levelNames[level],
		timestamp,
		file,
		line,
		message,
	)
}

// Debug logs a debug level message
func Debug(format string, v ...interface{}) {
	Log(LevelDebug, format, v...)
}

// Info logs an info level message
func Info(format string, v ...interface{}) {
	Log(LevelInfo, format, v...)
}

// Warning logs a warning level message
func Warning(format string, v ...interface{}) {
	Log(LevelWarning, format, v...)
}

// Error logs an error level message
func Error(format string, v ...interface{}) {
	Log(LevelError, format, v...)
}

// Reinitialize updates the logging settings from the current environment.
// DEBUG=true/1 enables output, LOG_LEVEL selects the minimum level.
func Reinitialize() {
	debugEnv := os.Getenv("DEBUG")
	IsEnabled = debugEnv == "true" || debugEnv == "1"

	levelEnv := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if level, exists := levelMap[levelEnv]; exists {
		CurrentLevel = level
	} else {
		CurrentLevel = LevelInfo
	}
}
