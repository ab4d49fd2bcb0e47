package model

import "time"

// Cookie is one harvested session cookie (spec.md §3).
type Cookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain"`
	Path     string     `json:"path"`
	Expires  *time.Time `json:"expires,omitempty"`
	HTTPOnly bool       `json:"http_only"`
	Secure   bool       `json:"secure"`
	SameSite string     `json:"same_site,omitempty"`
}

// GoldenTicket is the domain-scoped credential bundle harvested from a
// successful HITL session (spec.md §3, Glossary).
type GoldenTicket struct {
	Domain        string            `json:"domain"`
	SourceURL     string            `json:"source_url"`
	HarvestedAt   time.Time         `json:"harvested_at"`
	TTLSeconds    int               `json:"ttl_seconds"`
	Cookies       []Cookie          `json:"cookies"`
	UserAgent     string            `json:"user_agent,omitempty"`
	ProxyURL      string            `json:"proxy_url,omitempty"`
	ExtraHeaders  map[string]string `json:"extra_headers,omitempty"`
	ChallengeType ChallengeType     `json:"challenge_type,omitempty"`
}

// ClampTTL clamps t.TTLSeconds into [0, maxTTLSeconds], per the spec's
// GoldenTicket.ttl_seconds invariant.
func (t *GoldenTicket) ClampTTL(maxTTLSeconds int) {
	if t.TTLSeconds < 0 {
		t.TTLSeconds = 0
	}
	if t.TTLSeconds > maxTTLSeconds {
		t.TTLSeconds = maxTTLSeconds
	}
}

// IsExpired reports whether now is past the ticket's TTL window. Expiry is
// evaluated at read time regardless of whether the backing store has
// already evicted the key (spec.md §3 invariant).
func (t GoldenTicket) IsExpired(now time.Time) bool {
	return now.After(t.HarvestedAt.Add(time.Duration(t.TTLSeconds) * time.Second))
}

// HasCloudflareClearance reports whether a cf_clearance cookie is present.
func (t GoldenTicket) HasCloudflareClearance() bool {
	for _, c := range t.Cookies {
		if c.Name == "cf_clearance" {
			return true
		}
	}
	return false
}

// ApplyToOptions merges the ticket's cookies, user agent, and proxy into a
// FetchOptions for injection into the lightest tier (spec.md §4.2).
func (t GoldenTicket) ApplyToOptions(opts FetchOptions) FetchOptions {
	merged := opts.Clone()
	if merged.ExtraCookies == nil {
		merged.ExtraCookies = make(map[string]string, len(t.Cookies))
	}
	for _, c := range t.Cookies {
		merged.ExtraCookies[c.Name] = c.Value
	}
	if merged.ExtraHeaders == nil && len(t.ExtraHeaders) > 0 {
		merged.ExtraHeaders = make(map[string]string, len(t.ExtraHeaders))
	}
	for k, v := range t.ExtraHeaders {
		merged.ExtraHeaders[k] = v
	}
	if t.ProxyURL != "" && merged.ProxyURL == "" {
		merged.ProxyURL = t.ProxyURL
	}
	if t.UserAgent != "" {
		if merged.ExtraHeaders == nil {
			merged.ExtraHeaders = make(map[string]string, 1)
		}
		merged.ExtraHeaders["User-Agent"] = t.UserAgent
	}
	return merged
}
