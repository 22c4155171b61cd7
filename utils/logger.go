package utils

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Logger provides structured, leveled logging throughout the pipeline.
type Logger struct {
	out *log.Logger
	err *log.Logger
}

// NewLogger creates a new Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return &Logger{
		out: log.New(os.Stdout, "", 0),
		err: log.New(os.Stderr, "", 0),
	}
}

func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) Info(format string, args ...any) {
	l.out.Printf(fmt.Sprintf("[%s] \033[32mINFO\033[0m  %s\n", timestamp(), format), args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.out.Printf(fmt.Sprintf("[%s] \033[33mWARN\033[0m  %s\n", timestamp(), format), args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.err.Printf(fmt.Sprintf("[%s] \033[31mERROR\033[0m %s\n", timestamp(), format), args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.out.Printf(fmt.Sprintf("[%s] \033[36mDEBUG\033[0m %s\n", timestamp(), format), args...)
}
