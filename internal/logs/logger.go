package logs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger: глобальный логгер приложения (настраивается через Init).
// До Init пишет в stderr с уровнем info, чтобы пакеты и тесты могли логировать сразу.
var Logger = logrus.New()

// Options: параметры инициализации логгера.
type Options struct {
	Level  string // trace|debug|info|warning|error|fatal
	Format string // text|json
	File   string // префикс лог-файла; если пусто — только stdout
}

// Init настраивает глобальный логгер по переданным опциям.
func Init(opts Options) error {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if opts.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.File != "" {
		name := fmt.Sprintf("%s_%s.log", opts.File, time.Now().Format("2006-01-02_15-04-05"))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", name, err)
		}
		l.SetOutput(io.MultiWriter(f, os.Stdout))
	} else {
		l.SetOutput(os.Stdout)
	}

	Logger = l
	return nil
}

// Discard глушит логгер (для тестов).
func Discard() { Logger.SetOutput(io.Discard) }
