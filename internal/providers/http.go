package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

// newHTTPClient builds the pooled client shared by the HTTP based vendors.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends payload and returns the body of a 2xx response.
// Non-2xx responses and transport failures come back as classified provider errors.
func postJSON(ctx context.Context, identity models.ProviderIdentity, client *http.Client, url string, payload any, auth Authenticator, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if auth != nil {
		if err := auth.Apply(httpReq); err != nil {
			return nil, &ProviderError{Provider: identity, Kind: KindClient, Message: err.Error(), Err: err}
		}
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransportError(identity, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransportError(identity, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ClassifyStatus(identity, resp.StatusCode, resp.Header, respBody)
	}
	return respBody, nil
}

func decodeResponse(identity models.ProviderIdentity, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: identity, Kind: KindUnknown, Message: "unparseable response body", Err: err}
	}
	return nil
}
