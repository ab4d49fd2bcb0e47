// Package model holds the data types shared across the scrape orchestrator:
// fetch requests, tier results, harvested credentials, and CAPTCHA/HITL state.
package model

// TierLevel is the totally ordered escalation ladder from spec.md §3.
// Intermediate levels are pluggable; only 1, the first full-browser tier,
// and 7 (HITL) are required by every deployment.
type TierLevel int

const (
	TierRequest         TierLevel = 1 // lightweight HTTP, TLS-fingerprint impersonation
	TierBrowserRequest  TierLevel = 2 // browser-backed HTTP using a warmed session, no JS render
	TierFullBrowser     TierLevel = 3 // full browser render with navigation tricks
	TierStealthBrowser  TierLevel = 4 // stealth browser with a built-in challenge solver
	TierCDPBrowser      TierLevel = 5 // CDP-mode browser with a CAPTCHA solver
	TierNonWebdriver    TierLevel = 6 // non-webdriver browser, cross-frame/shadow-DOM capable
	TierHITL            TierLevel = 7 // human-in-the-loop
	FirstBrowserTier              = TierFullBrowser
	MinTier             TierLevel = TierRequest
	MaxTier             TierLevel = TierHITL
)

// String renders the tier for logs and metrics labels.
func (t TierLevel) String() string {
	switch t {
	case TierRequest:
		return "tier1_request"
	case TierBrowserRequest:
		return "tier2_browser_request"
	case TierFullBrowser:
		return "tier3_full_browser"
	case TierStealthBrowser:
		return "tier4_stealth_browser"
	case TierCDPBrowser:
		return "tier5_cdp_browser"
	case TierNonWebdriver:
		return "tier6_nonwebdriver"
	case TierHITL:
		return "tier7_hitl"
	default:
		return "tier_unknown"
	}
}

// Valid reports whether t is one of the seven defined levels.
func (t TierLevel) Valid() bool {
	return t >= MinTier && t <= MaxTier
}

// Strategy restricts the tier range an orchestration run may use.
type Strategy string

const (
	StrategyAuto        Strategy = "auto"
	StrategyRequestOnly Strategy = "request_only"
	StrategyBrowserOnly Strategy = "browser_only"
)

// ErrorType is the closed classification of tier failures (spec.md §3).
type ErrorType string

const (
	ErrorNone               ErrorType = "ok"
	ErrorTimeout            ErrorType = "timeout"
	ErrorDNS                ErrorType = "dns_error"
	ErrorConnectionRefused  ErrorType = "connection_refused"
	ErrorSSL                ErrorType = "ssl_error"
	ErrorNetwork            ErrorType = "network_error"
	ErrorBlocked            ErrorType = "blocked"
	ErrorCaptchaRequired    ErrorType = "captcha_required"
	ErrorRateLimit          ErrorType = "rate_limit"
	ErrorServer             ErrorType = "server_error"
	ErrorBrowserCrash       ErrorType = "browser_crash"
	ErrorUnknown            ErrorType = "unknown"
)

// FailsFast reports whether no stronger tier could plausibly fix this class
// of error (spec.md §4.1, §7).
func (e ErrorType) FailsFast() bool {
	return e == ErrorDNS || e == ErrorConnectionRefused
}

// ChallengeType is the closed set of detected anti-bot signals (spec.md §3).
type ChallengeType string

const (
	ChallengeNone        ChallengeType = ""
	ChallengeCloudflare  ChallengeType = "cloudflare"
	ChallengeCaptcha     ChallengeType = "captcha"
	ChallengeTurnstile   ChallengeType = "turnstile"
	ChallengeBotDetected ChallengeType = "bot_detected"
	ChallengeAccessDenied ChallengeType = "access_denied"
	ChallengeWAFBlock    ChallengeType = "waf_block"
)

// RequiresJS is the set of challenges tier 2 (browser-backed HTTP, no JS
// render) cannot by construction resolve — used by the orchestrator's skip
// rule. Grounded in the original system's `js_required_challenges` set.
func (c ChallengeType) RequiresJS() bool {
	switch c {
	case ChallengeCloudflare, ChallengeCaptcha, ChallengeTurnstile, ChallengeBotDetected:
		return true
	default:
		return false
	}
}

// ResultStatus is the derived, client-facing status of a TierResult
// (spec.md §6 "Result payload").
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailed  ResultStatus = "failed"
	StatusBlocked ResultStatus = "blocked"
	StatusTimeout ResultStatus = "timeout"
)
