package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// --- Log levels ---
const (
	FLAG_TRACE = 5
	FLAG_DEBUG = 4
	FLAG_INFO  = 3
	FLAG_WARN  = 2
	FLAG_ERROR = 1
	FLAG_NONE  = 0
)

// --- ANSI color codes ---
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
)

type LoggerConfig struct {
	Flag       int
	Identifier string
	// Plain drops colors and the box frame, one line per entry.
	Plain   bool
	Outputs []io.Writer
}

type Logger struct {
	mu     sync.Mutex
	Config *LoggerConfig
}

var config = &LoggerConfig{
	Flag:    FLAG_INFO,
	Outputs: []io.Writer{os.Stdout},
}

var logger = &Logger{Config: config}

func SetConfig(newConfig *LoggerConfig) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	*config = *newConfig
}

func SetOutputs(outputs ...io.Writer) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	config.Outputs = outputs
}

func SetFlag(flag int) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	config.Flag = flag
}

func SetIdentifier(identifier string) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	config.Identifier = identifier
}

func SetPlain(plain bool) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	config.Plain = plain
}

// ParseLevel maps a level name such as "debug" to its flag.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return FLAG_TRACE, nil
	case "debug":
		return FLAG_DEBUG, nil
	case "info", "":
		return FLAG_INFO, nil
	case "warn", "warning":
		return FLAG_WARN, nil
	case "error":
		return FLAG_ERROR, nil
	case "none", "off":
		return FLAG_NONE, nil
	}
	return FLAG_INFO, fmt.Errorf("unknown log level %q", name)
}

// --- Public Log API ---
func Trace(msg interface{}, a ...interface{}) { log(FLAG_TRACE, Blue, "TRACE", msg, a...) }
func Debug(msg interface{}, a ...interface{}) { log(FLAG_DEBUG, Cyan, "DEBUG", msg, a...) }
func Info(msg interface{}, a ...interface{})  { log(FLAG_INFO, Green, "INFO", msg, a...) }
func Warn(msg interface{}, a ...interface{})  { log(FLAG_WARN, Yellow, "WARN", msg, a...) }

func Error(msg interface{}, a ...interface{}) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if config.Flag < FLAG_ERROR {
		return
	}
	os.Stderr.Write(logger.format(Red, "ERROR", msg, a...))
}

// Enabled reports whether entries at level would be written.
func Enabled(level int) bool {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return config.Flag >= level
}

func log(level int, color, prefix string, msg interface{}, a ...interface{}) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if config.Flag < level {
		return
	}
	buffer := logger.format(color, prefix, msg, a...)
	for _, out := range config.Outputs {
		if out != nil {
			out.Write(buffer)
		}
	}
}

func (l *Logger) format(color, prefix string, msg interface{}, a ...interface{}) []byte {
	if l.Config.Plain {
		return formatPlainLog(prefix, msg, a...)
	}
	return formatConsoleLog(color, prefix, msg, a...)
}

func formatContent(msg interface{}, a ...interface{}) string {
	var contentBuffer bytes.Buffer
	if config.Identifier != "" {
		fmt.Fprintf(&contentBuffer, "[%s] ", config.Identifier)
	}
	if str, ok := msg.(string); ok && len(a) > 0 {
		fmt.Fprintf(&contentBuffer, str, a...)
	} else {
		fmt.Fprint(&contentBuffer, msg)
		for _, item := range a {
			fmt.Fprintf(&contentBuffer, " %v", item)
		}
	}
	return contentBuffer.String()
}

func formatPlainLog(prefix string, msg interface{}, a ...interface{}) []byte {
	var buffer bytes.Buffer
	fmt.Fprintf(&buffer, "%s [%s] ", time.Now().Format("15:04:05.000"), prefix)
	buffer.WriteString(strings.ReplaceAll(formatContent(msg, a...), "\n", " "))
	buffer.WriteByte('\n')
	return buffer.Bytes()
}

func formatConsoleLog(color, prefix string, msg interface{}, a ...interface{}) []byte {
	lines := strings.Split(formatContent(msg, a...), "\n")
	var buffer bytes.Buffer
	header := fmt.Sprintf(" %s ", time.Now().Format("15:04:05.000"))
	buffer.WriteString(color)
	fmt.Fprintf(&buffer, "┌─[%s]%s\n", prefix, header)
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintf(&buffer, "│  %s\n", line)
		}
	}
	buffer.WriteString("└" + strings.Repeat("─", len(prefix)+len(header)+3))
	buffer.WriteString(Reset + "\n")
	return buffer.Bytes()
}
