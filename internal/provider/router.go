package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/domain"
)

const defaultGeminiModel = "gemini-2.0-flash-exp"

// Factory builds a client bound to one model.
type Factory func(model string) (Client, error)

// Router maps model ids to cached clients.
type Router struct {
	cfg           config.ModelConfig
	defaultFamily Family
	factories     map[Family]Factory

	mu      sync.Mutex
	clients map[string]Client
}

// Option customizes a Router.
type Option func(*Router)

// WithFactory overrides how clients of family f are built.
func WithFactory(f Family, factory Factory) Option {
	return func(r *Router) {
		r.factories[f] = factory
	}
}

// NewRouter creates a router over the configured provider credentials.
func NewRouter(cfg config.ModelConfig, opts ...Option) *Router {
	def, ok := ParseFamily(cfg.DefaultFamily)
	if !ok {
		def = FamilyGemini
	}

	r := &Router{
		cfg:           cfg,
		defaultFamily: def,
		clients:       make(map[string]Client),
	}
	r.factories = map[Family]Factory{
		FamilyGemini:    r.newGemini,
		FamilyOpenAI:    r.newOpenAI,
		FamilyAnthropic: r.newAnthropic,
		FamilyOllama:    r.newOllama,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ClassifyModel maps a model id to its family, falling back to the default family.
func (r *Router) ClassifyModel(modelID string) Family {
	if f, ok := classifyPrefix(modelID); ok {
		return f
	}
	return r.defaultFamily
}

func classifyPrefix(modelID string) (Family, bool) {
	id := strings.ToLower(strings.TrimSpace(modelID))
	switch {
	case strings.HasPrefix(id, "gemini"):
		return FamilyGemini, true
	case strings.HasPrefix(id, "gpt"),
		strings.HasPrefix(id, "o1"),
		strings.HasPrefix(id, "o3"),
		strings.HasPrefix(id, "o4"):
		return FamilyOpenAI, true
	case strings.HasPrefix(id, "claude"):
		return FamilyAnthropic, true
	case strings.HasPrefix(id, "ollama/"),
		strings.HasPrefix(id, "llama"),
		strings.HasPrefix(id, "qwen"),
		strings.HasPrefix(id, "mistral"):
		return FamilyOllama, true
	default:
		return 0, false
	}
}

// Resolve returns a client for modelID. Missing credentials produce a
// *domain.ConfigError wrapping domain.ErrMissingCredential.
func (r *Router) Resolve(modelID string) (Client, error) {
	family := r.ClassifyModel(modelID)
	model := r.modelName(family, modelID)
	key := family.String() + ":" + model

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	c, err := r.factories[family](model)
	if err != nil {
		if domain.IsConfigError(err) {
			return nil, err
		}
		return nil, &domain.ConfigError{Op: "resolve model " + modelID, Err: err}
	}
	r.clients[key] = c
	return c, nil
}

func (r *Router) modelName(family Family, modelID string) string {
	switch family {
	case FamilyGemini:
		if r.cfg.GoogleModelName != "" {
			return r.cfg.GoogleModelName
		}
		if !strings.HasPrefix(strings.ToLower(modelID), "gemini") {
			return defaultGeminiModel
		}
	case FamilyOllama:
		return strings.TrimPrefix(modelID, "ollama/")
	}
	return modelID
}

func missingCredential(family Family, key string) error {
	return &domain.ConfigError{
		Op:  family.String(),
		Err: fmt.Errorf("%w: %s is not set", domain.ErrMissingCredential, key),
	}
}
