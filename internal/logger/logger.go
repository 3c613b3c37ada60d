package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"amoflow/internal/config"
)

// New собирает logrus-логгер по секции log конфига. Если указан error_log,
// предупреждения и ошибки дополнительно дописываются в этот файл.
func New(cfg config.LogConfig) *log.Logger {
	l := log.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if cfg.Debug {
		level = log.DebugLevel
	}
	l.SetLevel(level)

	if cfg.ErrorLog != "" {
		l.AddHook(NewFileHook(cfg.ErrorLog))
	}
	return l
}

// FileHook appends warn-and-above entries to a plain text file,
// one "2006-01-02 15:04:05 - message" line per entry.
type FileHook struct {
	path string
	mu   sync.Mutex
}

func NewFileHook(path string) *FileHook {
	return &FileHook{path: path}
}

func (h *FileHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel}
}

func (h *FileHook) Fire(e *log.Entry) error {
	var b strings.Builder
	b.WriteString(e.Time.Format("2006-01-02 15:04:05"))
	b.WriteString(" - ")
	b.WriteString(e.Message)
	if err, ok := e.Data[log.ErrorKey]; ok {
		fmt.Fprintf(&b, ": %v", err)
	}
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
