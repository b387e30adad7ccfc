package oracle

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotConfigured is returned when no Gemini API key is configured.
	ErrNotConfigured = errors.New("gemini api key not configured")
	// ErrAllKeysCoolingDown is returned when every key failed recently.
	ErrAllKeysCoolingDown = errors.New("all gemini keys are cooling down after failures")
)

// keyPool rotates API keys round-robin and skips keys that failed within the cooldown.
type keyPool struct {
	mu            sync.Mutex
	keys          []string
	next          int
	cooldown      time.Duration
	disabledUntil map[string]time.Time
	now           func() time.Time
}

func newKeyPool(keys []string, cooldown time.Duration) *keyPool {
	return &keyPool{
		keys:          append([]string(nil), keys...),
		cooldown:      cooldown,
		disabledUntil: make(map[string]time.Time),
		now:           time.Now,
	}
}

func (p *keyPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// acquire returns the next key that is not cooling down.
func (p *keyPool) acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", ErrNotConfigured
	}
	now := p.now()
	for i := 0; i < len(p.keys); i++ {
		idx := (p.next + i) % len(p.keys)
		key := p.keys[idx]
		if until, ok := p.disabledUntil[key]; ok && now.Before(until) {
			continue
		}
		delete(p.disabledUntil, key)
		p.next = (idx + 1) % len(p.keys)
		return key, nil
	}
	return "", ErrAllKeysCoolingDown
}

func (p *keyPool) markFailure(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabledUntil[key] = p.now().Add(p.cooldown)
}

func (p *keyPool) markSuccess(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.disabledUntil, key)
}

// safeKeySuffix returns the last 4 characters of a key, or the full key if it's shorter.
func safeKeySuffix(key string) string {
	if len(key) > 4 {
		return key[len(key)-4:]
	}
	return key
}
