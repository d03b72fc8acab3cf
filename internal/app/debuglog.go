package app

import (
	"fmt"
	"log"
	"os"
)

// debugLog appends timestamped session lines to a file when
// --debug-file is set; otherwise every call is a no-op.
type debugLog struct {
	f *os.File
	l *log.Logger
}

func newDebugLog(path string) (*debugLog, error) {
	if path == "" {
		return &debugLog{}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening debug file: %w", err)
	}
	return &debugLog{f: f, l: log.New(f, "", log.LstdFlags)}, nil
}

func (d *debugLog) Printf(format string, args ...any) {
	if d.l != nil {
		d.l.Printf(format, args...)
	}
}

func (d *debugLog) Close() {
	if d.f != nil {
		d.f.Close()
	}
}
