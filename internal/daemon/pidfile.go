package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PIDFileName is the PID file written under the data directory
const PIDFileName = "abilityd.pid"

var (
	// ErrNotRunning means no live daemon owns the PID file
	ErrNotRunning = errors.New("daemon is not running")
	// ErrAlreadyRunning means another live process owns the PID file
	ErrAlreadyRunning = errors.New("daemon is already running")
)

// PIDFile records which process serves a data directory. A file left by a
// process that no longer exists is stale and is replaced or removed.
type PIDFile struct {
	path string
}

// NewPIDFile returns the PID file of a data directory
func NewPIDFile(dataDir string) *PIDFile {
	return &PIDFile{path: filepath.Join(dataDir, PIDFileName)}
}

// Path returns the file location
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire records the current process. It fails when another live process
// already holds the file.
func (p *PIDFile) Acquire() error {
	if pid, alive := p.Owner(); alive && pid != os.Getpid() {
		return fmt.Errorf("%w (PID %d, file %s)", ErrAlreadyRunning, pid, p.path)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Release removes the file if the current process still owns it
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if err != nil || pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Read parses the recorded PID
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// Owner returns the recorded PID and whether that process is alive
func (p *PIDFile) Owner() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

// Signal sends sig to the owning process. A stale file is removed and
// reported as ErrNotRunning.
func (p *PIDFile) Signal(sig syscall.Signal) (int, error) {
	pid, err := p.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotRunning
		}
		return 0, err
	}
	if !processAlive(pid) {
		os.Remove(p.path)
		return 0, fmt.Errorf("%w (removed stale PID file)", ErrNotRunning)
	}

	if err := syscall.Kill(pid, sig); err != nil {
		return 0, fmt.Errorf("failed to send %s to %d: %w", sig, pid, err)
	}
	return pid, nil
}

// WaitExit polls until pid exits or ctx is done
func WaitExit(ctx context.Context, pid int) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for processAlive(pid) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// processAlive probes pid with signal 0
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
