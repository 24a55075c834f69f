package github

import (
	"sync"
	"time"

	"github.com/codeGROOVE-dev/approvebot/pkg/approve"
)

// configCacheDuration bounds how long a fetched repository configuration is
// reused before a fresh fetch. Kept short so config edits take effect
// within minutes.
const configCacheDuration = 10 * time.Minute

// configCache holds recently fetched repository configurations in memory,
// including negative entries for repositories without a config file.
type configCache struct {
	mu      sync.RWMutex
	entries map[string]configEntry
}

// configEntry represents a cached repository configuration. A nil config
// records a repository known to have no rule file.
type configEntry struct {
	config   *approve.RepoConfig
	cachedAt time.Time
}

// newConfigCache creates an empty config cache.
func newConfigCache() *configCache {
	return &configCache{entries: make(map[string]configEntry)}
}

// get retrieves a cached configuration if it exists and is not expired.
func (cc *configCache) get(owner, repo string) (*approve.RepoConfig, bool) {
	key := owner + "/" + repo

	cc.mu.RLock()
	defer cc.mu.RUnlock()

	entry, exists := cc.entries[key]
	if !exists {
		return nil, false
	}
	if time.Since(entry.cachedAt) > configCacheDuration {
		return nil, false
	}
	return entry.config, true
}

// set stores a configuration, or a negative entry when cfg is nil.
func (cc *configCache) set(owner, repo string, cfg *approve.RepoConfig) {
	key := owner + "/" + repo

	cc.mu.Lock()
	cc.entries[key] = configEntry{config: cfg, cachedAt: time.Now()}
	cc.mu.Unlock()
}
