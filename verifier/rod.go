package verifier

import (
	"context"
	"time"

	"github.com/hazyhaar/censo/internal/browser"
)

// RodLauncher starts a Chrome per session through browser.Manager.
func RodLauncher(bcfg browser.Config) Launcher {
	return func(ctx context.Context) (Browser, error) {
		m := browser.NewManager(bcfg)
		if _, err := m.Start(ctx); err != nil {
			m.Close()
			return nil, err
		}
		return rodBrowser{m: m}, nil
	}
}

// NewRod creates a Client backed by a real Chrome.
func NewRod(cfg Config, bcfg browser.Config, opts ...Option) *Client {
	return New(cfg, RodLauncher(bcfg), opts...)
}

type rodBrowser struct {
	m *browser.Manager
}

func (b rodBrowser) NewPage(ctx context.Context) (Page, error) {
	tab, err := browser.OpenTab(ctx, b.m)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

func (b rodBrowser) Close() error { return b.m.Close() }

// Uptime is the Chrome process age, so a reconnect resets it.
func (b rodBrowser) Uptime() time.Duration { return b.m.Uptime() }
