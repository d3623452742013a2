package tenant

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Backend labels a tenant's search upstream family.
const (
	BackendPostgres   = "postgres"
	BackendOracle     = "oracle"
	BackendOpenSearch = "opensearch"
)

const (
	defaultBackend = BackendOpenSearch
	defaultLLM     = "ollama"

	// DefaultID is the descriptor id used when tenancy is disabled.
	DefaultID = "default"
)

// Auth is an upstream basic-auth credential pair.
type Auth struct {
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// Descriptor is an immutable tenant configuration.
type Descriptor struct {
	DefaultBackend string
	DefaultLLM     string
	Upstreams      map[string]string // backend -> base URL; missing = unavailable
	Auth           *Auth
}

// NotFoundError reports an unknown tenant id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return "no tenants configured and no default tenant present"
	}
	return fmt.Sprintf("unknown tenant: %s", e.ID)
}

// BackendUnavailableError reports a backend with no configured upstream URL.
type BackendUnavailableError struct {
	Backend string
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("upstream not configured for backend %s", e.Backend)
}

// UpstreamFor returns the base URL serving the given backend.
func (d *Descriptor) UpstreamFor(backend string) (string, error) {
	u := d.Upstreams[backend]
	if u == "" {
		return "", &BackendUnavailableError{Backend: backend}
	}
	return u, nil
}

type descriptorYAML struct {
	DefaultBackend string `yaml:"default_backend"`
	DefaultLLM     string `yaml:"default_llm"`
	Upstreams      struct {
		PostgresAPI   string `yaml:"postgres_api"`
		OracleAPI     string `yaml:"oracle_api"`
		OpenSearchAPI string `yaml:"opensearch_api"`
	} `yaml:"upstreams"`
	Auth *Auth `yaml:"auth"`
}

type fileYAML struct {
	Tenants map[string]*descriptorYAML `yaml:"tenants"`
	Default *descriptorYAML            `yaml:"default"`
}

// Registry resolves tenant ids to descriptors. Descriptors are immutable
// between reloads; Reload swaps the whole map atomically so readers never
// observe a partial load.
type Registry struct {
	path    string
	tenants atomic.Pointer[map[string]*Descriptor]
}

// NewRegistry loads the registry from a YAML file.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the tenants file and atomically replaces all descriptors.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading tenants file: %w", err)
	}

	var f fileYAML
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing tenants file: %w", err)
	}

	tenants := make(map[string]*Descriptor, len(f.Tenants)+1)
	for id, raw := range f.Tenants {
		tenants[id] = fromYAML(raw)
	}
	if f.Default != nil {
		tenants[DefaultID] = fromYAML(f.Default)
	}

	r.tenants.Store(&tenants)
	return nil
}

func fromYAML(raw *descriptorYAML) *Descriptor {
	if raw == nil {
		raw = &descriptorYAML{}
	}
	d := &Descriptor{
		DefaultBackend: raw.DefaultBackend,
		DefaultLLM:     raw.DefaultLLM,
		Upstreams:      make(map[string]string, 3),
		Auth:           raw.Auth,
	}
	if d.DefaultBackend == "" {
		d.DefaultBackend = defaultBackend
	}
	if d.DefaultLLM == "" {
		d.DefaultLLM = defaultLLM
	}
	if u := raw.Upstreams.PostgresAPI; u != "" {
		d.Upstreams[BackendPostgres] = u
	}
	if u := raw.Upstreams.OracleAPI; u != "" {
		d.Upstreams[BackendOracle] = u
	}
	if u := raw.Upstreams.OpenSearchAPI; u != "" {
		d.Upstreams[BackendOpenSearch] = u
	}
	if d.Auth != nil && (d.Auth.User == "" || d.Auth.Pass == "") {
		d.Auth = nil
	}
	return d
}

// Get returns the descriptor for a tenant id.
func (r *Registry) Get(id string) (*Descriptor, error) {
	tenants := *r.tenants.Load()
	d, ok := tenants[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return d, nil
}

// Default returns the descriptor used when tenancy is disabled. Without an
// explicit default block a single configured tenant stands in for it; with
// several, the smallest id is picked so the choice stays deterministic.
func (r *Registry) Default() (*Descriptor, error) {
	tenants := *r.tenants.Load()
	if d, ok := tenants[DefaultID]; ok {
		return d, nil
	}
	if len(tenants) == 0 {
		return nil, &NotFoundError{}
	}
	ids := make([]string, 0, len(tenants))
	for id := range tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return tenants[ids[0]], nil
}
