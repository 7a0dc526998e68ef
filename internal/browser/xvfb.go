// CLAUDE:SUMMARY Starts and stops an Xvfb virtual display for headful stealth browser mode.
package browser

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// startXvfb launches an Xvfb virtual display sized to the viewport.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil // already running
	}

	display := m.cfg.XvfbDisplay
	screen := strconv.Itoa(m.cfg.ViewportWidth) + "x" + strconv.Itoa(m.cfg.ViewportHeight) + "x24"
	cmd := exec.Command("Xvfb", display, "-screen", "0", screen, "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	// Xvfb has no readiness signal.
	time.Sleep(500 * time.Millisecond)

	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		m.xvfb.Process.Kill()
		m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped")
	m.xvfb = nil
}
