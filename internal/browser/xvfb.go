// CLAUDE:SUMMARY Runs the Xvfb display used by headful tabs and waits for its X socket before Chrome launches.
package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// xvfbReadyTimeout bounds the wait for the display socket.
const xvfbReadyTimeout = 5 * time.Second

// x11SocketDir is where Xvfb creates display sockets.
var x11SocketDir = "/tmp/.X11-unix"

// displaySocket maps ":99" or ":99.0" to the socket path of display 99.
func displaySocket(display string) (string, error) {
	num, ok := strings.CutPrefix(display, ":")
	if !ok || num == "" {
		return "", fmt.Errorf("browser: invalid display %q", display)
	}
	num, _, _ = strings.Cut(num, ".")
	for _, r := range num {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("browser: invalid display %q", display)
		}
	}
	return filepath.Join(x11SocketDir, "X"+num), nil
}

// startXvfb launches Xvfb on the configured display unless it already runs,
// and returns once the display accepts clients.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	sock, err := displaySocket(display)
	if err != nil {
		return err
	}
	if _, err := os.Stat(sock); err == nil {
		m.cfg.Logger.Info("browser: reusing existing display", "display", display)
		return nil
	}

	bin, err := exec.LookPath("Xvfb")
	if err != nil {
		return fmt.Errorf("browser: headful tabs need Xvfb: %w", err)
	}
	cmd := exec.Command(bin, display, "-screen", "0", "1920x1080x24", "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: start xvfb: %w", err)
	}
	m.xvfb = cmd

	if err := waitForSocket(sock, xvfbReadyTimeout); err != nil {
		m.stopXvfb()
		return err
	}
	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browser: display socket %s not ready after %v", path, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// stopXvfb kills the Xvfb process started by startXvfb.
func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		if err := m.xvfb.Process.Kill(); err != nil {
			m.cfg.Logger.Warn("browser: kill xvfb", "error", err)
		}
		m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
	m.xvfb = nil
}
