package useragent

import (
	"bufio"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

/*
Responsibilities
- Hold a pool of user-agent strings, loaded from a file with a built-in
  fallback list when no file is configured or the file is empty
- Hand out a UA per-request (rotate_per_request) or pin one per session
  (rotate_per_session) and remember the pinning
- Pick up edits to the pool file without a restart

Knows nothing about proxies or which host a UA will be used against.
*/

// defaultPool ships a small, realistic set so the crawler degrades
// gracefully with zero configuration.
var defaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

type Pool struct {
	mu   sync.RWMutex
	pool []string
	rng  *rand.Rand

	rrIndex int

	sessionMu sync.Mutex
	pinned    map[string]string // sessionID -> UA

	poolFile string
	watcher  *fsnotify.Watcher
}

// New builds a pool. If poolFile is non-empty, it is loaded immediately
// (falling back to defaultPool on read or parse error). Watching it for
// changes starts only when WatchForChanges is called.
func New(poolFile string) *Pool {
	p := &Pool{
		pool:     append([]string(nil), defaultPool...),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		pinned:   make(map[string]string),
		poolFile: poolFile,
	}
	if poolFile != "" {
		if loaded, err := loadFromFile(poolFile); err == nil && len(loaded) > 0 {
			p.pool = loaded
		}
	}
	return p
}

func loadFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

// WatchForChanges starts an fsnotify watch on the configured pool file
// and reloads the pool on every write event. A no-op if no pool file was
// configured. Stop via Close.
func (p *Pool) WatchForChanges() error {
	if p.poolFile == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(p.poolFile); err != nil {
		watcher.Close()
		return err
	}
	p.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if loaded, err := loadFromFile(p.poolFile); err == nil && len(loaded) > 0 {
						p.mu.Lock()
						p.pool = loaded
						p.mu.Unlock()
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (p *Pool) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

// GetRandom returns a uniformly random UA from the current pool.
func (p *Pool) GetRandom() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pool[p.rng.Intn(len(p.pool))]
}

// GetNext returns the next UA in round-robin order.
func (p *Pool) GetNext() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ua := p.pool[p.rrIndex%len(p.pool)]
	p.rrIndex++
	return ua
}

// ForSession returns a UA pinned to sessionID, choosing and remembering
// one on first call for that session.
func (p *Pool) ForSession(sessionID string) string {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	if ua, ok := p.pinned[sessionID]; ok {
		return ua
	}
	ua := p.GetRandom()
	p.pinned[sessionID] = ua
	return ua
}

// ReleaseSession forgets a session's pinned UA.
func (p *Pool) ReleaseSession(sessionID string) {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	delete(p.pinned, sessionID)
}

func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pool)
}
