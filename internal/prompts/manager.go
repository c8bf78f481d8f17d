package prompts

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Manager tracks versioned prompt content on top of the static
// defaults, so prompt text can be iterated on without redeploys.
type Manager struct {
	mu       sync.RWMutex
	versions map[string]map[string]string // name -> version -> content
	current  map[string]string            // name -> current version
	logger   zerolog.Logger
}

// NewManager creates an empty prompt manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		versions: make(map[string]map[string]string),
		current:  make(map[string]string),
		logger:   logger,
	}
}

// RegisterVersion stores a new version of a prompt, optionally marking
// it as the current one.
func (m *Manager) RegisterVersion(name, version, content string, setAsCurrent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.versions[name] == nil {
		m.versions[name] = make(map[string]string)
	}
	m.versions[name][version] = content

	if setAsCurrent {
		m.current[name] = version
	}

	m.logger.Info().
		Str("prompt", name).
		Str("version", version).
		Bool("current", setAsCurrent).
		Msg("Registered prompt version")
}

// Get resolves a prompt: an explicit version if registered, else the
// current registered version, else the static default template.
func (m *Manager) Get(name, version string) (string, error) {
	m.mu.RLock()

	if version != "" {
		if content, ok := m.versions[name][version]; ok {
			m.mu.RUnlock()
			return content, nil
		}
		m.logger.Warn().
			Str("prompt", name).
			Str("version", version).
			Msg("Prompt version not found, falling back")
	}

	if cur, ok := m.current[name]; ok {
		if content, ok := m.versions[name][cur]; ok {
			m.mu.RUnlock()
			return content, nil
		}
	}
	m.mu.RUnlock()

	content, err := Get(name)
	if err != nil {
		return "", fmt.Errorf("resolve prompt %q: %w", name, err)
	}
	return content, nil
}
