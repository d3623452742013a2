package pipeline

import "fmt"

// ValidationError rejects a request before it reaches any cache or upstream.
// Surfaced as HTTP 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// TenantMissingError reports an absent X-Tenant-Id header while tenancy is
// enabled. Surfaced as HTTP 401.
type TenantMissingError struct{}

func (e *TenantMissingError) Error() string { return "missing X-Tenant-Id" }

// UpstreamError reports a transport failure or upstream 5xx. Surfaced as
// HTTP 502 with the backend label.
type UpstreamError struct {
	Backend string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream error (%s): %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("upstream error (%s): status %d", e.Backend, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
