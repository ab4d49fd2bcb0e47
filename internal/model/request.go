package model

import "fmt"

// FetchOptions are the advisory, best-effort fields a tier may honor
// (spec.md §3). A tier that cannot honor a field must still return a
// tier-appropriate success or error, never silently ignore it.
type FetchOptions struct {
	ProxyURL            string            `json:"proxy_url,omitempty"`
	ExtraCookies        map[string]string `json:"extra_cookies,omitempty"`
	ExtraHeaders        map[string]string `json:"extra_headers,omitempty"`
	WaitSelector        string            `json:"wait_selector,omitempty"`
	ProfileID           string            `json:"profile_id,omitempty"`
	UseStealthNavigation bool             `json:"use_stealth_navigation,omitempty"`
}

// Clone returns a deep copy so tiers and the orchestrator can mutate their
// own working copy (e.g. to inject a ticket) without aliasing the caller's.
func (o FetchOptions) Clone() FetchOptions {
	c := o
	if o.ExtraCookies != nil {
		c.ExtraCookies = make(map[string]string, len(o.ExtraCookies))
		for k, v := range o.ExtraCookies {
			c.ExtraCookies[k] = v
		}
	}
	if o.ExtraHeaders != nil {
		c.ExtraHeaders = make(map[string]string, len(o.ExtraHeaders))
		for k, v := range o.ExtraHeaders {
			c.ExtraHeaders[k] = v
		}
	}
	return c
}

// FetchRequest is the immutable submission record created at job enqueue
// time (spec.md §3).
type FetchRequest struct {
	JobID      string       `json:"job_id"`
	URL        string       `json:"url"`
	Strategy   Strategy     `json:"strategy"`
	Options    FetchOptions `json:"options"`
	StartTier  TierLevel    `json:"start_tier,omitempty"`
	MaxTier    TierLevel    `json:"max_tier,omitempty"`
}

// Validate rejects malformed requests at the boundary, per the spec's
// "deep option bags are rejected, not silently coerced" design note.
func (r FetchRequest) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("fetch request: url is required")
	}
	switch r.Strategy {
	case StrategyAuto, StrategyRequestOnly, StrategyBrowserOnly, "":
	default:
		return fmt.Errorf("fetch request: unknown strategy %q", r.Strategy)
	}
	return nil
}
