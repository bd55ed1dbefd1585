package logging

import (
	"log"
	"os"
	"strings"
	"sync"
)

const (
	Critical = 50
	Fatal    = Critical
	Error    = 40
	Warning  = 30
	Info     = 20
	Debug    = 10
	NotSet   = 0
)

var (
	LogLevel      int = Warning
	logLevelMutex sync.Mutex
)

func init() {
	if level, ok := ParseLevel(os.Getenv("LOG_LEVEL")); ok {
		SetLogLevel(level)
	}
	localEnv := os.Getenv("LOCAL")
	if strings.ToLower(localEnv) == "true" || localEnv == "1" {
		SetLogLevel(Debug)
	}
}

// ParseLevel maps a level name to its value. ok is false for empty or
// unknown names.
func ParseLevel(name string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return Debug, true
	case "info":
		return Info, true
	case "warn", "warning":
		return Warning, true
	case "error":
		return Error, true
	case "critical", "fatal":
		return Critical, true
	default:
		return NotSet, false
	}
}

func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	LogLevel = level
}

func GetLogLevel() int {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	return LogLevel
}

func logf(level int, tag, format string, v ...any) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	if LogLevel <= level {
		log.Printf("["+tag+"] "+format, v...)
	}
}

func Debugf(format string, v ...any) {
	logf(Debug, "DEBUG", format, v...)
}

func Infof(format string, v ...any) {
	logf(Info, "INFO", format, v...)
}

func Warningf(format string, v ...any) {
	logf(Warning, "WARN", format, v...)
}

func Errorf(format string, v ...any) {
	logf(Error, "ERROR", format, v...)
}

func Criticalf(format string, v ...any) {
	logf(Critical, "CRITICAL", format, v...)
}

func Fatalf(format string, v ...any) {
	log.Fatalf("[FATAL] "+format, v...)
}
