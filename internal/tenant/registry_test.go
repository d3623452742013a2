package tenant

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTenants(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing tenants file: %v", err)
	}
	return path
}

const sampleYAML = `
default:
  default_backend: opensearch
  upstreams:
    opensearch_api: http://default-os:9999

tenants:
  acme:
    default_backend: postgres
    default_llm: oci_genai
    upstreams:
      postgres_api: http://acme-pg:8001
      opensearch_api: http://acme-os:8002
    auth:
      user: acme
      pass: secret
  globex:
    upstreams:
      opensearch_api: http://globex-os:8002
`

func TestRegistryLoad(t *testing.T) {
	r, err := NewRegistry(writeTenants(t, sampleYAML))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	d, err := r.Get("acme")
	if err != nil {
		t.Fatalf("Get(acme): %v", err)
	}
	if d.DefaultBackend != BackendPostgres {
		t.Errorf("acme default backend = %q", d.DefaultBackend)
	}
	if d.DefaultLLM != "oci_genai" {
		t.Errorf("acme default llm = %q", d.DefaultLLM)
	}
	if d.Auth == nil || d.Auth.User != "acme" || d.Auth.Pass != "secret" {
		t.Errorf("acme auth not loaded: %+v", d.Auth)
	}

	u, err := d.UpstreamFor(BackendPostgres)
	if err != nil {
		t.Fatalf("UpstreamFor(postgres): %v", err)
	}
	if u != "http://acme-pg:8001" {
		t.Errorf("postgres upstream = %q", u)
	}
}

func TestRegistryDefaults(t *testing.T) {
	r, err := NewRegistry(writeTenants(t, sampleYAML))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	d, err := r.Get("globex")
	if err != nil {
		t.Fatalf("Get(globex): %v", err)
	}
	if d.DefaultBackend != BackendOpenSearch {
		t.Errorf("missing default_backend should fall back to opensearch, got %q", d.DefaultBackend)
	}
	if d.DefaultLLM != "ollama" {
		t.Errorf("missing default_llm should fall back to ollama, got %q", d.DefaultLLM)
	}
	if d.Auth != nil {
		t.Errorf("globex should have no auth, got %+v", d.Auth)
	}
}

func TestRegistryUnknownTenant(t *testing.T) {
	r, err := NewRegistry(writeTenants(t, sampleYAML))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	_, err = r.Get("nobody")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.ID != "nobody" {
		t.Errorf("error should carry the id, got %q", nf.ID)
	}
}

func TestBackendUnavailable(t *testing.T) {
	r, err := NewRegistry(writeTenants(t, sampleYAML))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	d, _ := r.Get("globex")
	_, err = d.UpstreamFor(BackendOracle)
	var bu *BackendUnavailableError
	if !errors.As(err, &bu) {
		t.Fatalf("expected BackendUnavailableError, got %v", err)
	}
}

func TestDefaultDescriptor(t *testing.T) {
	r, err := NewRegistry(writeTenants(t, sampleYAML))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	d, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if u, _ := d.UpstreamFor(BackendOpenSearch); u != "http://default-os:9999" {
		t.Errorf("default descriptor upstream = %q", u)
	}
}

func TestDefaultFallsBackToSmallestID(t *testing.T) {
	r, err := NewRegistry(writeTenants(t, `
tenants:
  zeta:
    upstreams:
      opensearch_api: http://zeta:1
  alpha:
    upstreams:
      opensearch_api: http://alpha:1
`))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	d, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if u, _ := d.UpstreamFor(BackendOpenSearch); u != "http://alpha:1" {
		t.Errorf("expected alpha's descriptor, got upstream %q", u)
	}
}

func TestDefaultEmptyRegistry(t *testing.T) {
	r, err := NewRegistry(writeTenants(t, "tenants: {}\n"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := r.Default(); err == nil {
		t.Fatal("expected error from empty registry")
	}
}

func TestRegistryReload(t *testing.T) {
	path := writeTenants(t, sampleYAML)
	r, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	updated := `
tenants:
  acme:
    default_backend: oracle
    upstreams:
      oracle_api: http://acme-ora:8003
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewriting tenants file: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	d, err := r.Get("acme")
	if err != nil {
		t.Fatalf("Get(acme) after reload: %v", err)
	}
	if d.DefaultBackend != BackendOracle {
		t.Errorf("reload did not apply, backend = %q", d.DefaultBackend)
	}
	if _, err := r.Get("globex"); err == nil {
		t.Error("globex should be gone after reload")
	}
}

func TestIncompleteAuthDropped(t *testing.T) {
	r, err := NewRegistry(writeTenants(t, `
tenants:
  acme:
    upstreams:
      opensearch_api: http://acme-os:8002
    auth:
      user: acme
`))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	d, _ := r.Get("acme")
	if d.Auth != nil {
		t.Errorf("auth with missing pass should be dropped, got %+v", d.Auth)
	}
}
