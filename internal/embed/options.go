package embed

import "net/http"

// embedderOpts holds shared configuration for embedder implementations.
type embedderOpts struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

// Option configures an embedder.
type Option func(*embedderOpts)

// WithModel sets the embedding model name.
func WithModel(model string) Option {
	return func(c *embedderOpts) { c.model = model }
}

// WithDimension sets the desired output vector dimensionality.
func WithDimension(dim int) Option {
	return func(c *embedderOpts) { c.dim = dim }
}

// WithBaseURL overrides the API base URL, for OpenAI-compatible
// providers other than OpenAI itself.
func WithBaseURL(url string) Option {
	return func(c *embedderOpts) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *embedderOpts) { c.httpClient = client }
}
