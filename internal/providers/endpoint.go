package providers

import (
	"net/url"
	"strings"

	"tutor_gateway/internal/models"
)

const modelPlaceholder = "{model}"

// JoinEndpoint concatenates a base URL and a path with exactly one slash
// between them. At most one trailing slash is removed from base; an empty
// path leaves base untouched apart from that.
func JoinEndpoint(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// resolveChatPath returns the configured chat path or the protocol default.
func resolveChatPath(p models.Provider) string {
	if p.ChatPath != "" {
		return p.ChatPath
	}

	switch p.Protocol {
	case models.ProtocolAnthropicMessages:
		return "/v1/messages"
	case models.ProtocolGoogleGenAI:
		return "/models/{model}:generateContent"
	default:
		return "/chat/completions"
	}
}

// resolveGoogleEndpoint substitutes the model into the chat path. Paths
// without a placeholder are ignored in favour of the standard layout.
func resolveGoogleEndpoint(p models.Provider, model string) string {
	path := resolveChatPath(p)
	if strings.Contains(path, modelPlaceholder) {
		path = strings.Replace(path, modelPlaceholder, model, 1)
	} else {
		path = "/models/" + model + ":generateContent"
	}
	return JoinEndpoint(p.BaseURL, path)
}

// googleStreamEndpoint rewrites a generateContent endpoint into its SSE
// streaming counterpart. ok is false when the endpoint names neither method.
func googleStreamEndpoint(endpoint string) (string, bool) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint, false
	}

	switch {
	case strings.HasSuffix(u.Path, ":generateContent"):
		u.Path = strings.TrimSuffix(u.Path, ":generateContent") + ":streamGenerateContent"
		u.RawPath = ""
	case strings.HasSuffix(u.Path, ":streamGenerateContent"):
	default:
		return endpoint, false
	}
	q := u.Query()
	q.Set("alt", "sse")
	u.RawQuery = q.Encode()
	return u.String(), true
}
