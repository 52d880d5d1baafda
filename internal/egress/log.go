package egress

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// Logger writes one protocol.EgressLogEntry per request to an append-only
// newline-delimited file and echoes it to structured operator logs (spec
// §3/§5/§6). Grounded on original_source/proxy/addon.py's _log_request
// (JSONL file + stdout logger.warning/info pair).
type Logger struct {
	mu   sync.Mutex
	file *os.File
	log  *slog.Logger
}

// NewLogger opens path for append, creating parent directories as needed.
func NewLogger(path string, log *slog.Logger) (*Logger, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f, log: log}, nil
}

// Log appends entry as one JSON line and mirrors it to structured logs.
// The file is opened append-only so interleaved writes from concurrent
// requests produce interleaved but individually intact records (spec §5).
func (l *Logger) Log(entry protocol.EgressLogEntry) {
	line, err := json.Marshal(entry)
	if err != nil {
		l.log.Warn("egress log: marshal entry failed", "error", err)
		return
	}

	l.mu.Lock()
	_, writeErr := l.file.Write(append(line, '\n'))
	l.mu.Unlock()
	if writeErr != nil {
		l.log.Warn("egress log: write failed", "error", writeErr)
	}

	if entry.Blocked {
		l.log.Warn("egress blocked", "method", entry.Method, "url", entry.URL, "reason", entry.Reason, "secrets", entry.DetectedSecrets)
	} else {
		l.log.Info("egress allowed", "method", entry.Method, "url", entry.URL)
	}
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// newEntry builds the wire log entry for one request/decision pair.
func newEntry(method, rawURL, host string, decision Decision, requestSize int, now time.Time) protocol.EgressLogEntry {
	return protocol.EgressLogEntry{
		Timestamp:       now,
		Method:          method,
		URL:             rawURL,
		Host:            host,
		Blocked:         decision.Blocked,
		Reason:          decision.Reason,
		DetectedSecrets: decision.Tags,
		RequestSize:     requestSize,
	}
}
