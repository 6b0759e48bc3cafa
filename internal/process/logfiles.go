package process

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFiles manages the stdout/stderr file handles for a child process.
type LogFiles struct {
	stdoutFile *os.File
	stderrFile *os.File
	logDir     string
	stdoutName string // e.g., "cardano-node-stdout.log"
	stderrName string // e.g., "cardano-wallet-stderr.log"
}

// create opens both log files. The handles are assigned to the struct only
// after both creates succeed.
func (l *LogFiles) create() error {
	stdoutFile, err := os.Create(l.StdoutPath())
	if err != nil {
		return fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(l.StderrPath())
	if err != nil {
		_ = stdoutFile.Close()
		return fmt.Errorf("create stderr log: %w", err)
	}
	l.stdoutFile = stdoutFile
	l.stderrFile = stderrFile
	return nil
}

// Close closes both log file handles and nils them to prevent double-close.
func (l *LogFiles) Close() {
	if l.stdoutFile != nil {
		_ = l.stdoutFile.Close()
		l.stdoutFile = nil
	}
	if l.stderrFile != nil {
		_ = l.stderrFile.Close()
		l.stderrFile = nil
	}
}

// StdoutPath returns the absolute path to the stdout log file.
func (l *LogFiles) StdoutPath() string {
	return filepath.Join(l.logDir, l.stdoutName)
}

// StderrPath returns the absolute path to the stderr log file.
func (l *LogFiles) StderrPath() string {
	return filepath.Join(l.logDir, l.stderrName)
}

// NewLogFiles creates and opens log files for a child process. The name is
// used to derive the file names (e.g., "cardano-node" -> "cardano-node-stdout.log").
func NewLogFiles(logDir, name string) (LogFiles, error) {
	l := LogFiles{
		logDir:     logDir,
		stdoutName: name + "-stdout.log",
		stderrName: name + "-stderr.log",
	}
	if err := l.create(); err != nil {
		return LogFiles{}, err
	}
	return l, nil
}
