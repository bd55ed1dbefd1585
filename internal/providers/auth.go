package providers

import "tutor_gateway/internal/models"

const defaultCustomHeaderName = "X-API-Key"

// HeaderAuth attaches an API key to requests under a fixed header name with
// an optional value prefix.
type HeaderAuth struct {
	apiKey     string
	headerName string // e.g. "Authorization"
	prefix     string // e.g. "Bearer "
}

// NewHeaderAuth creates an authenticator for the provider's auth scheme.
func NewHeaderAuth(p models.Provider) *HeaderAuth {
	switch p.AuthScheme {
	case models.AuthSchemeXAPIKey:
		return &HeaderAuth{apiKey: p.APIKey, headerName: "x-api-key"}
	case models.AuthSchemeCustomHeader:
		name := p.CustomHeaderName
		if name == "" {
			name = defaultCustomHeaderName
		}
		return &HeaderAuth{apiKey: p.APIKey, headerName: name}
	default:
		return &HeaderAuth{apiKey: p.APIKey, headerName: "Authorization", prefix: "Bearer "}
	}
}

// HeaderName returns the header the key is sent under.
func (a *HeaderAuth) HeaderName() string {
	return a.headerName
}

// Apply writes the auth header into a header map, preserving the header
// name exactly as configured.
func (a *HeaderAuth) Apply(headers map[string]string) {
	headers[a.headerName] = a.prefix + a.apiKey
}
