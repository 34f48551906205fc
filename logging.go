package mdsession

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// LogLevel is the severity of a log entry, grounded on eventloop's
// logging.go LogLevel (LevelDebug..LevelError), renamed to avoid
// colliding with this package's own exported Level-like vocabulary.
type LogLevel int32

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry is a structured log entry, grounded on eventloop's LogEntry
// but trimmed of the loop/task/timer correlation fields that have no
// meaning in this package -- Fields carries whatever structured context
// a call site wants instead.
type LogEntry struct {
	Level   LogLevel
	Message string
	Fields  map[string]any
	Err     error
	Time    time.Time
}

// Logger is the structured logging interface a Session writes to. A
// caller may provide their own (e.g. to route into an existing
// logging pipeline), in which case Uninitialize never closes it --
// only a logger this package constructed itself is owned and closed.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// logAt is the gated-write helper every internal call site uses instead
// of constructing a LogEntry by hand, mirroring eventloop's
// LogDebug/LogInfo/LogWarn/LogError package functions but parameterized
// over level instead of duplicated per level.
func logAt(l Logger, level LogLevel, msg string, fields map[string]any) {
	if l == nil || !l.IsEnabled(level) {
		return
	}
	l.Log(LogEntry{Level: level, Message: msg, Fields: fields, Time: time.Now()})
}

// textLogger backs both NewStdoutLogger and NewFileLogger: a
// severity-gated, human-readable line written with eventloop's
// DefaultLogger formatting, plus a structured JSON line produced by a
// wired logiface.Logger[*stumpy.Event] -- grounded on
// logging.go's stated design of "a low-overhead built-in
// implementation... while allowing external integration with logging
// frameworks", and wired exactly as logiface-stumpy/example_test.go
// demonstrates (stumpy.L.New(stumpy.L.WithWriter(...))).
type textLogger struct {
	level       atomic.Int32
	mu          sync.Mutex
	out         io.Writer
	includeDate bool
	structured  *logiface.Logger[*stumpy.Event]
	closer      io.Closer // non-nil only for a file-backed logger
}

func newTextLogger(level LogLevel, out io.Writer, includeDate bool, closer io.Closer) *textLogger {
	l := &textLogger{out: out, includeDate: includeDate, closer: closer}
	l.level.Store(int32(level))
	writer := logiface.WriterFunc[*stumpy.Event](func(e *stumpy.Event) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		_, err := l.out.Write(append(e.Bytes(), '\n'))
		return err
	})
	l.structured = stumpy.L.New(stumpy.L.WithStumpy(), stumpy.L.WithWriter(writer))
	return l
}

// NewStdoutLogger creates a Logger writing both representations to
// os.Stdout, filtered to entries at or above minSeverity.
func NewStdoutLogger(minSeverity LogLevel, includeDate bool) Logger {
	return newTextLogger(minSeverity, os.Stdout, includeDate, nil)
}

// NewFileLogger creates a Logger writing to fileName, rotating once the
// file reaches maxFileSizeBytes, keeping at most maxFileCount rotated
// files (the config layer's NumberOfLogFiles). Grounded on eventloop's
// NewFileLogger, extended with the rotation its single-file
// DefaultLogger never needed.
func NewFileLogger(fileName string, minSeverity LogLevel, includeDate bool, maxFileSizeBytes int64, maxFileCount int) (Logger, error) {
	rw, err := newRotatingFile(fileName, maxFileSizeBytes, maxFileCount)
	if err != nil {
		return nil, &InaccessibleLogFileException{Filename: fileName, Text: err.Error()}
	}
	return newTextLogger(minSeverity, rw, includeDate, rw), nil
}

func (l *textLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

func (l *textLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	l.writeText(entry)
	l.writeStructured(entry)
}

func (l *textLogger) writeText(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.includeDate {
		fmt.Fprintf(l.out, "%s [%-5s] %s", entry.Time.Format("2006-01-02 15:04:05.000"), entry.Level, entry.Message)
	} else {
		fmt.Fprintf(l.out, "[%-5s] %s", entry.Level, entry.Message)
	}
	for k, v := range entry.Fields {
		fmt.Fprintf(l.out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.out, " err=%v", entry.Err)
	}
	fmt.Fprintln(l.out)
}

func (l *textLogger) writeStructured(entry LogEntry) {
	b := l.structured.Build(toLogifaceLevel(entry.Level))
	for k, v := range entry.Fields {
		b = b.Field(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

// close releases the underlying writer, if this logger owns it (i.e.
// it is file-backed). Stdout-backed loggers have a nil closer and this
// is a no-op.
func (l *textLogger) close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func toLogifaceLevel(l LogLevel) logiface.Level {
	switch l {
	case LogLevelDebug:
		return logiface.LevelDebug
	case LogLevelInfo:
		return logiface.LevelInformational
	case LogLevelWarn:
		return logiface.LevelWarning
	case LogLevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// noopLogger discards everything; Session.router uses it for the fallback
// error router that serves API calls made before Initialize has created
// the session logger.
type noopLogger struct{}

func (noopLogger) Log(LogEntry)            {}
func (noopLogger) IsEnabled(LogLevel) bool { return false }
