// Package audit keeps a write-only trail of verification verdicts.
// Every verdict is written as one JSON line to a rotating file so approvals
// can be reviewed after the process that issued them is gone.
package audit

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/traylinx/payverify/internal/ledger"
)

// Entry records a single verdict.
type Entry struct {
	// Timestamp is when the verdict was issued.
	Timestamp time.Time `json:"timestamp"`

	// VerificationID identifies the verdict.
	VerificationID string `json:"verification_id"`

	// Outcome is "approved" or "rejected".
	Outcome string `json:"outcome"`

	Confidence      float64  `json:"confidence"`
	Score           int      `json:"score"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`

	// Checks holds the structural sub-checks by name.
	Checks map[string]bool `json:"checks"`
}

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled toggles audit logging.
	Enabled bool

	// LogPath is the file path for the audit log.
	LogPath string

	// MaxSizeMB is the maximum size in megabytes before rotation.
	// Default: 100 MB.
	MaxSizeMB int

	// MaxBackups is the maximum number of old log files to retain.
	// Default: 10.
	MaxBackups int

	// MaxAgeDays is the maximum number of days to retain old log files.
	// Default: 30 days.
	MaxAgeDays int

	// Compress determines whether rotated log files should be compressed.
	Compress bool
}

// Logger writes verdict entries to a rotating log file.
type Logger struct {
	mu       sync.Mutex
	encoder  *json.Encoder
	file     *lumberjack.Logger
	enabled  bool
	logPath  string
	fallback *log.Logger
}

// NewLogger creates an audit logger. A disabled logger is a no-op.
func NewLogger(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{enabled: false, fallback: log.New()}, nil
	}

	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 10
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 30
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0755); err != nil {
		return nil, err
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.LogPath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	return &Logger{
		encoder:  json.NewEncoder(fileLogger),
		file:     fileLogger,
		enabled:  true,
		logPath:  cfg.LogPath,
		fallback: log.New(),
	}, nil
}

// Log writes an entry. Safe for concurrent use.
func (l *Logger) Log(entry Entry) {
	if !l.enabled {
		return
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.encoder.Encode(entry); err != nil {
		l.fallback.WithFields(log.Fields{
			"error":           err.Error(),
			"verification_id": entry.VerificationID,
			"outcome":         entry.Outcome,
		}).Error("Failed to write audit log entry")
	}
}

// OnVerdict implements ledger.Observer.
func (l *Logger) OnVerdict(v ledger.Verdict) {
	outcome := "rejected"
	if v.Approved {
		outcome = "approved"
	}
	l.Log(Entry{
		Timestamp:       v.Timestamp,
		VerificationID:  v.VerificationID,
		Outcome:         outcome,
		Confidence:      v.Confidence,
		Score:           v.Analysis.Score,
		MatchedKeywords: v.Analysis.MatchedKeywords,
		Checks: map[string]bool{
			"amount":   v.Analysis.HasCorrectAmount,
			"provider": v.Analysis.HasProvider,
			"success":  v.Analysis.HasSuccessStatus,
		},
	})
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	if !l.enabled || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Rotate triggers a log file rotation.
func (l *Logger) Rotate() error {
	if !l.enabled || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Rotate()
}
