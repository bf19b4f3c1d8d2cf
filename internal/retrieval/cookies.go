package retrieval

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// credentialMarkers are extractor message fragments that point at a bad or throttled cookie
var credentialMarkers = []string{
	"sign in to confirm",
	"not a bot",
	"http error 403",
	"http error 429",
	"too many requests",
	"cookies are no longer valid",
	"login required",
}

// CookieEntry describes one credential file in the pool
type CookieEntry struct {
	Path             string
	Size             int64
	ModTime          time.Time
	QuarantinedUntil time.Time
}

// CookiePool picks a random cookie file per job from a directory of *.txt files.
// Files that recently failed with a credential-like error sit out for a cooldown.
type CookiePool struct {
	dir      string
	cooldown time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	quarantined map[string]time.Time
	now         func() time.Time
}

// NewCookiePool creates a pool over dir. A missing directory is an empty pool.
func NewCookiePool(dir string, cooldown time.Duration, logger *slog.Logger) *CookiePool {
	return &CookiePool{
		dir:         dir,
		cooldown:    cooldown,
		logger:      logger,
		quarantined: make(map[string]time.Time),
		now:         time.Now,
	}
}

func (p *CookiePool) paths() []string {
	if p.dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(p.dir, "*.txt"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// Pick returns a cookie file path, or "" when the pool is empty.
// If every entry is quarantined the whole pool is eligible again.
func (p *CookiePool) Pick() string {
	all := p.paths()
	if len(all) == 0 {
		return ""
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	eligible := make([]string, 0, len(all))
	for _, path := range all {
		until, ok := p.quarantined[path]
		if ok && now.Before(until) {
			continue
		}
		if ok {
			delete(p.quarantined, path)
		}
		eligible = append(eligible, path)
	}

	if len(eligible) == 0 {
		p.logger.Warn("All cookie files are quarantined, using the full pool",
			slog.Int("pool_size", len(all)),
		)
		eligible = all
	}

	return eligible[rand.IntN(len(eligible))]
}

// Quarantine excludes path from selection for the configured cooldown
func (p *CookiePool) Quarantine(path string) {
	if path == "" || p.cooldown <= 0 {
		return
	}

	p.mu.Lock()
	until := p.now().Add(p.cooldown)
	p.quarantined[path] = until
	p.mu.Unlock()

	p.logger.Warn("Cookie file quarantined",
		slog.String("cookie_file", filepath.Base(path)),
		slog.Time("until", until),
	)
}

// List returns every entry in the pool with its quarantine state
func (p *CookiePool) List() ([]CookieEntry, error) {
	if _, err := os.Stat(p.dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat cookie pool: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var entries []CookieEntry
	for _, path := range p.paths() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		entries = append(entries, CookieEntry{
			Path:             path,
			Size:             info.Size(),
			ModTime:          info.ModTime(),
			QuarantinedUntil: p.quarantined[path],
		})
	}

	return entries, nil
}

// IsCredentialError reports whether an extractor message points at the cookie used
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range credentialMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
