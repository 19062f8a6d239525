package profile

import (
	"sync"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

// Provider holds the current profile for concurrent readers.
type Provider struct {
	mu      sync.RWMutex
	current domain.Profile
}

func NewProvider(initial domain.Profile) *Provider {
	return &Provider{current: initial}
}

func (p *Provider) Current() domain.Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Provider) Set(profile domain.Profile) {
	p.mu.Lock()
	p.current = profile
	p.mu.Unlock()
}
