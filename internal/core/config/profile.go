package config

import (
	"fmt"
	"time"
)

const (
	ProfileAuto   = "auto"
	ProfileLocal  = "local"
	ProfileServer = "server"
)

const (
	// DefaultUserAgent is a desktop Chrome UA the web endpoints accept.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultCookie carries a long-lived ttwid; the detail API rejects cookieless calls.
	DefaultCookie = "douyin.com; ttwid=1%7C3YKRuDjD_yHY9DkvHbJOXZXk8OfHV9Mp5jNYF3EYNA8%7C1677649113%7C99ce39ceecd30164c9d26c33fa53524d6b6f735c455d4ae97708d87c43d416a7"
)

// BrowserProfile is a resolved browser environment: launch flags and the
// time limits of one interception session.
type BrowserProfile struct {
	Name              string
	Bin               string
	Headless          bool
	Flags             []string
	NavigationTimeout time.Duration
	Deadline          time.Duration
	Retries           int
}

func localProfile() BrowserProfile {
	return BrowserProfile{
		Name:              ProfileLocal,
		Headless:          true,
		Flags:             []string{"no-sandbox", "disable-setuid-sandbox"},
		NavigationTimeout: 15 * time.Second,
		Deadline:          15 * time.Second,
		Retries:           2,
	}
}

// Constrained containers: small /dev/shm, no user namespaces, no GPU.
func serverProfile() BrowserProfile {
	return BrowserProfile{
		Name:     ProfileServer,
		Headless: true,
		Flags: []string{
			"no-sandbox",
			"disable-setuid-sandbox",
			"disable-dev-shm-usage",
			"disable-gpu",
			"no-zygote",
			"no-first-run",
			"disable-extensions",
		},
		NavigationTimeout: 30 * time.Second,
		Deadline:          25 * time.Second,
		Retries:           2,
	}
}

// ResolveProfile turns the configured profile name and overrides into a
// BrowserProfile. "auto" (or empty) picks server on constrained hosts.
func (b BrowserConfig) ResolveProfile() (BrowserProfile, error) {
	return b.resolve(IsConstrainedHost())
}

func (b BrowserConfig) resolve(constrained bool) (BrowserProfile, error) {
	var p BrowserProfile
	switch b.Profile {
	case "", ProfileAuto:
		if constrained {
			p = serverProfile()
		} else {
			p = localProfile()
		}
	case ProfileLocal:
		p = localProfile()
	case ProfileServer:
		p = serverProfile()
	default:
		return BrowserProfile{}, fmt.Errorf("unknown browser profile %q (want auto, local or server)", b.Profile)
	}

	p.Bin = b.Bin
	if b.Visible && p.Name == ProfileLocal {
		p.Headless = false
	}
	if b.NavigationTimeout > 0 {
		p.NavigationTimeout = b.NavigationTimeout
	}
	if b.Deadline > 0 {
		p.Deadline = b.Deadline
	}
	if b.Retries != nil && *b.Retries >= 0 {
		p.Retries = *b.Retries
	}
	return p, nil
}
