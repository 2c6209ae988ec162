package providers

import (
	"net/http"

	"github.com/rotisserie/eris"
)

// errMissingAPIKey is reported as a client error before any request is sent.
var errMissingAPIKey = eris.New("API key is required")

// headerKeyAuth sends the vendor key in one header, e.g. "Authorization: Bearer <key>"
// for OpenAI-compatible APIs or "x-goog-api-key: <key>" for Gemini.
type headerKeyAuth struct {
	apiKey string
	header string
	prefix string
}

func newHeaderKeyAuth(apiKey, header, prefix string) *headerKeyAuth {
	if header == "" {
		header = "Authorization"
	}
	return &headerKeyAuth{apiKey: apiKey, header: header, prefix: prefix}
}

func (a *headerKeyAuth) Apply(req *http.Request) error {
	if a.apiKey == "" {
		return errMissingAPIKey
	}
	req.Header.Set(a.header, a.prefix+a.apiKey)
	return nil
}
