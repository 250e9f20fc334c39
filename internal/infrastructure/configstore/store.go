package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ecdemo/backend/internal/application/bulkuser"
	"github.com/ecdemo/backend/internal/domain/loadtest"
	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Document is everything the store persists: custom creation templates, the
// load-test endpoint registry, and the safety limits.
type Document struct {
	Templates    map[string]bulkuser.CreationConfig `json:"templates"`
	Endpoints    []loadtest.EndpointConfig          `json:"endpoints" validate:"dive"`
	SafetyLimits loadtest.SafetyLimits              `json:"safety_limits" validate:"required"`
	UpdatedAt    time.Time                          `json:"updated_at"`
}

// Store is a JSON-file-backed configuration registry. Writes go to a temp
// file and rename into place so a crash mid-write never leaves a torn file.
type Store struct {
	mu       sync.RWMutex
	path     string
	doc      Document
	validate *validator.Validate
	logger   *zap.Logger
}

// New loads the store from path, creating it with defaults when absent.
func New(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:     path,
		validate: validator.New(),
		logger:   logger,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.doc); err != nil {
			return nil, fmt.Errorf("config store %s is corrupt: %w", path, err)
		}
	case os.IsNotExist(err):
		s.doc = defaultDocument()
		if err := s.persist(); err != nil {
			return nil, err
		}
		logger.Info("created config store with defaults", zap.String("path", path))
	default:
		return nil, fmt.Errorf("failed to read config store %s: %w", path, err)
	}

	if s.doc.Templates == nil {
		s.doc.Templates = make(map[string]bulkuser.CreationConfig)
	}
	return s, nil
}

func defaultDocument() Document {
	return Document{
		Templates: make(map[string]bulkuser.CreationConfig),
		Endpoints: []loadtest.EndpointConfig{
			{Name: "home", URL: "http://localhost:5000/", Method: "GET", Weight: 3, Enabled: true, Timeout: 30 * time.Second},
			{Name: "products", URL: "http://localhost:5000/products", Method: "GET", Weight: 2, Enabled: true, Timeout: 30 * time.Second},
			{Name: "search", URL: "http://localhost:5000/search", Method: "GET", Weight: 1, Enabled: true, Timeout: 30 * time.Second},
		},
		SafetyLimits: loadtest.DefaultSafetyLimits(),
		UpdatedAt:    time.Now().UTC(),
	}
}

// Template resolves a template by name: custom templates first, then the
// built-ins.
func (s *Store) Template(name string) (bulkuser.CreationConfig, error) {
	s.mu.RLock()
	cfg, ok := s.doc.Templates[name]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}
	return bulkuser.TemplateByName(name)
}

// TemplateNames lists built-in and custom template names.
func (s *Store) TemplateNames() []string {
	names := bulkuser.TemplateNames()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name := range s.doc.Templates {
		names = append(names, name)
	}
	return names
}

// SaveTemplate stores or replaces a custom template. Built-in names cannot
// be shadowed.
func (s *Store) SaveTemplate(name string, cfg bulkuser.CreationConfig) error {
	if name == "" {
		return shared.NewDomainError("INVALID_INPUT", "template name is empty")
	}
	if _, err := bulkuser.TemplateByName(name); err == nil {
		return shared.NewDomainError("ALREADY_EXISTS", fmt.Sprintf("template %q is built in", name))
	}
	if v := cfg.Validate(); !v.IsValid {
		return shared.NewDomainError("VALIDATION_FAILED",
			fmt.Sprintf("template %q is invalid: %v", name, v.Errors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Templates[name] = cfg
	s.doc.UpdatedAt = time.Now().UTC()
	return s.persist()
}

// DeleteTemplate removes a custom template.
func (s *Store) DeleteTemplate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Templates[name]; !ok {
		return shared.ErrNotFound
	}
	delete(s.doc.Templates, name)
	s.doc.UpdatedAt = time.Now().UTC()
	return s.persist()
}

// Endpoints returns a copy of the endpoint registry.
func (s *Store) Endpoints() []loadtest.EndpointConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]loadtest.EndpointConfig, len(s.doc.Endpoints))
	copy(out, s.doc.Endpoints)
	return out
}

// SetEndpoints replaces the endpoint registry after validation.
func (s *Store) SetEndpoints(endpoints []loadtest.EndpointConfig) error {
	for _, ep := range endpoints {
		if err := s.validate.Struct(ep); err != nil {
			return shared.NewDomainError("VALIDATION_FAILED",
				fmt.Sprintf("endpoint %q is invalid: %s", ep.Name, err))
		}
	}
	seen := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		if seen[ep.Name] {
			return shared.NewDomainError("VALIDATION_FAILED",
				fmt.Sprintf("duplicate endpoint name %q", ep.Name))
		}
		seen[ep.Name] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Endpoints = endpoints
	s.doc.UpdatedAt = time.Now().UTC()
	return s.persist()
}

// SafetyLimits returns the persisted load-test limits.
func (s *Store) SafetyLimits() loadtest.SafetyLimits {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.SafetyLimits
}

// SetSafetyLimits replaces the load-test limits.
func (s *Store) SetSafetyLimits(limits loadtest.SafetyLimits) error {
	if err := s.validate.Struct(limits); err != nil {
		return shared.NewDomainError("VALIDATION_FAILED", fmt.Sprintf("invalid safety limits: %s", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.SafetyLimits = limits
	s.doc.UpdatedAt = time.Now().UTC()
	return s.persist()
}

// persist writes the document atomically. Callers hold the write lock.
func (s *Store) persist() error {
	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".configstore-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
