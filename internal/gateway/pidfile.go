package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Andy963/ads-sub001/internal/common/constants"
	"github.com/Andy963/ads-sub001/internal/common/logger"
	"go.uber.org/zap"
)

// PIDFile is the gateway's at-most-one-process guard (spec.md §5):
// ".ads/run/web.pid" records the live gateway's PID; a new process that
// finds a live, lookalike process signals it to exit and waits briefly
// before taking over.
type PIDFile struct {
	path string
	log  *logger.Logger
}

// NewPIDFile builds a PIDFile rooted at workspace/.ads/run/web.pid.
func NewPIDFile(workspace string, log *logger.Logger) *PIDFile {
	return &PIDFile{path: filepath.Join(workspace, ".ads", "run", "web.pid"), log: log}
}

// Acquire performs the cooperative handover: if a recorded PID is alive and
// its command line looks like this server, it is asked to terminate and we
// wait briefly for it to release the file before writing our own PID.
func (p *PIDFile) Acquire() error {
	if pid, ok := p.readLivePID(); ok {
		if looksLikeSelf(pid) {
			p.log.Info("signaling prior gateway process for handover", zap.Int("pid", pid))
			_ = syscall.Kill(pid, syscall.SIGTERM)
			deadline := time.Now().Add(constants.IdleHandoverWait)
			for time.Now().Before(deadline) {
				if !processAlive(pid) {
					break
				}
				time.Sleep(100 * time.Millisecond)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("gateway: create pid dir: %w", err)
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Release removes the PID file; called on clean shutdown.
func (p *PIDFile) Release() {
	_ = os.Remove(p.path)
}

func (p *PIDFile) readLivePID() (int, bool) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if !processAlive(pid) {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// looksLikeSelf reports whether pid's command line appears to be another
// instance of this server, read from /proc on Linux; on other platforms it
// conservatively assumes true (cooperative handover is best-effort there).
func looksLikeSelf(pid int) bool {
	if runtime.GOOS != "linux" {
		return true
	}
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return true
	}
	cmdline := strings.ReplaceAll(string(raw), "\x00", " ")
	return strings.Contains(cmdline, "adsd")
}
