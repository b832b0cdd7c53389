package auth

import (
	"net/http"
)

// Transport adds the app credential to every outgoing request.
type Transport struct {
	Credentials *CredentialCache
	Base        http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.Credentials.Get(req.Context())
	if err != nil {
		return nil, err
	}

	r := req.Clone(req.Context())
	tok.SetAuthHeader(r)

	resp, err := t.base().RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.Credentials.Invalidate()
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// NewHTTPClient returns an http.Client that authenticates with creds.
func NewHTTPClient(creds *CredentialCache, base *http.Client) *http.Client {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	client.Transport = &Transport{Credentials: creds, Base: client.Transport}
	return client
}
