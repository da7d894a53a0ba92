package llm

import (
	"net/url"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/forPelevin/reelforge/internal/faults"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// DefaultHosts are the chat endpoints trusted with the API key when no
// allow-list is configured.
var DefaultHosts = []string{
	"generativelanguage.googleapis.com",
	"openrouter.ai",
	"api.openrouter.ai",
	"api.openai.com",
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL checks that the chat endpoint can receive the API key:
// https only, no embedded credentials, no query or fragment, and a host on
// the allow-list. An empty allow-list means DefaultHosts.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	const op = "llm.base_url"
	endpoint := normalizeBaseURL(baseURL)

	u, err := url.Parse(endpoint)
	if err != nil {
		return faults.InvalidInput(op, "cannot parse %q: %v", endpoint, err)
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case !u.IsAbs() || host == "":
		return faults.InvalidInput(op, "%q needs a scheme and a host", endpoint)
	case !strings.EqualFold(u.Scheme, "https"):
		return faults.InvalidInput(op, "%q must use https", endpoint)
	case u.User != nil:
		return faults.InvalidInput(op, "%q must not embed credentials", endpoint)
	case u.RawQuery != "" || u.Fragment != "":
		return faults.InvalidInput(op, "%q must not carry a query or fragment", endpoint)
	}

	hosts := trustedHosts(allowedHosts)
	if !slices.Contains(hosts, host) {
		return faults.InvalidInput(op, "host %q is not trusted with the api key (allowed: %s)", host, strings.Join(hosts, ", "))
	}
	return nil
}

// trustedHosts reduces configured entries to bare lower-case host names,
// dropping schemes, ports and slashes.
func trustedHosts(configured []string) []string {
	hosts := lo.Uniq(lo.FilterMap(configured, func(h string, _ int) (string, bool) {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.TrimPrefix(h, "http://")
		h = strings.TrimPrefix(h, "https://")
		h = strings.Trim(h, "/")
		if i := strings.IndexByte(h, ':'); i >= 0 {
			h = h[:i]
		}
		return h, h != ""
	}))
	if len(hosts) == 0 {
		return DefaultHosts
	}
	return hosts
}
