// Package challenge classifies a tier's raw (content, status_code) response
// into a model.ChallengeType using layered pattern matching: strong content
// signatures first, status-code fallbacks only when content matched
// nothing, with corroboration required before weak signals fire.
package challenge

import (
	"strings"

	"github.com/titanscrape/titan/internal/model"
)

// signature pairs a challenge tag with the phrases that strongly indicate
// it. Content signatures always win over status-code fallbacks.
type signature struct {
	challenge model.ChallengeType
	phrases   []string
}

// contentSignatures are checked in order; the first match wins. Order
// matters only in that cloudflare-specific language is checked ahead of the
// generic bot_detected bucket so a Cloudflare interstitial is never
// misfiled as a generic detection.
var contentSignatures = []signature{
	{
		challenge: model.ChallengeCloudflare,
		phrases: []string{
			"checking your browser before accessing",
			"cf-browser-verification",
			"cloudflare ray id",
			"attention required! | cloudflare",
			"/cdn-cgi/challenge-platform",
		},
	},
	{
		challenge: model.ChallengeTurnstile,
		phrases: []string{
			"cf-turnstile",
			"challenges.cloudflare.com/turnstile",
		},
	},
	{
		challenge: model.ChallengeCaptcha,
		phrases: []string{
			"recaptcha",
			"g-recaptcha",
			"hcaptcha",
			"h-captcha",
			"funcaptcha",
			"arkose labs",
			"press and hold",
			"verify you are human",
		},
	},
	{
		challenge: model.ChallengeBotDetected,
		phrases: []string{
			"automated access to this website",
			"unusual traffic from your computer",
			"bot detection",
			"perimeterx",
			"datadome",
			"distil_r_captcha",
			"akamai bot manager",
		},
	},
	{
		challenge: model.ChallengeAccessDenied,
		phrases: []string{
			"access to this page has been denied",
			"you don't have permission to access",
			"403 forbidden",
		},
	},
}

// wafVocabulary corroborates a 503 as a WAF challenge rather than a
// transient server error. None of these alone fires without the 503
// status-code fallback path below.
var wafVocabulary = []string{
	"firewall",
	"web application firewall",
	"security service",
	"shield",
	"protection",
	"sucuri",
	"incapsula",
	"imperva",
}

// cloudflareEdgeErrorCodes are Cloudflare edge-server error codes with no
// legitimate "transient server error" reading; encountering one is treated
// as a block outright (SPEC_FULL.md "Blocked status-code table").
var cloudflareEdgeErrorCodes = map[int]bool{
	520: true, 521: true, 522: true, 523: true, 524: true,
}

// Detect classifies a (content, status_code) pair. It is monotone in
// signals: adding an indicator to content never reduces detection,
// because every layer after the first is reached only when the prior
// layer found nothing.
func Detect(content string, statusCode int) model.ChallengeType {
	lower := strings.ToLower(content)

	for _, sig := range contentSignatures {
		for _, phrase := range sig.phrases {
			if strings.Contains(lower, phrase) {
				return sig.challenge
			}
		}
	}

	switch {
	case statusCode == 403:
		return model.ChallengeAccessDenied
	case statusCode == 503:
		if containsAny(lower, wafVocabulary) {
			return model.ChallengeWAFBlock
		}
		return model.ChallengeNone
	case cloudflareEdgeErrorCodes[statusCode]:
		return model.ChallengeWAFBlock
	default:
		// 429 carries no challenge tag of its own — ClassifyError below
		// surfaces it as error_type=rate_limit instead.
		return model.ChallengeNone
	}
}

// ClassifyError derives the error_type a tier should report for a
// non-2xx/timeout response, independent of the detected challenge tag
// (spec.md §4.1 status-code fallbacks).
func ClassifyError(statusCode int, challenge model.ChallengeType) model.ErrorType {
	switch {
	case challenge != model.ChallengeNone:
		return model.ErrorBlocked
	case statusCode == 429:
		return model.ErrorRateLimit
	case statusCode >= 500:
		return model.ErrorServer
	case statusCode >= 400:
		return model.ErrorBlocked
	default:
		return model.ErrorNone
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// IsBlockedStatus reports whether code is in the blocked-status-code table
// (SPEC_FULL.md) used by tiers to set error_type=blocked independent of
// content-based challenge detection.
func IsBlockedStatus(code int) bool {
	switch code {
	case 403, 429, 503:
		return true
	default:
		return cloudflareEdgeErrorCodes[code]
	}
}
