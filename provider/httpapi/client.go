package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/internal/hydrate"
	"github.com/hashicorp/go-cleanhttp"
)

const maxBodyBytes = 8 << 20

// ErrNoEndpoint indicates a level without a configured endpoint.
var ErrNoEndpoint = errors.New("httpapi: no endpoint for level")

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("httpapi: %s %s: status %d", e.Method, e.URL, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled cleanhttp client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTimeout bounds each request. Zero keeps the caller's context only.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout >= 0 {
			c.timeout = timeout
		}
	}
}

// WithEndpoint sets or replaces the endpoint for the level called name.
func WithEndpoint(name string, endpoint Endpoint) Option {
	return func(c *Client) {
		c.endpoints[name] = endpoint.normalized()
	}
}

// Client is a cascade.Provider backed by a REST API.
type Client struct {
	baseURL   *url.URL
	hierarchy cascade.Hierarchy
	http      *http.Client
	token     string
	timeout   time.Duration
	endpoints map[string]Endpoint
}

// New builds a client for hierarchy against baseURL. Endpoints default to
// PortalEndpoints; override them with WithEndpoint.
func New(baseURL string, hierarchy cascade.Hierarchy, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("httpapi: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("httpapi: base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:   parsed,
		hierarchy: hierarchy,
		http:      cleanhttp.DefaultPooledClient(),
		endpoints: make(map[string]Endpoint),
	}
	for name, endpoint := range PortalEndpoints() {
		c.endpoints[name] = endpoint.normalized()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// FromConfig builds a client from the api section of a cascade config.
// Configured endpoints replace the portal defaults of the same level.
func FromConfig(cfg cascade.APIConfig, hierarchy cascade.Hierarchy, opts ...Option) (*Client, error) {
	base := []Option{WithToken(cfg.Token), WithTimeout(cfg.Timeout)}
	for name, endpoint := range cfg.Endpoints {
		base = append(base, WithEndpoint(name, EndpointFromConfig(endpoint)))
	}
	return New(cfg.BaseURL, hierarchy, append(base, opts...)...)
}

// FetchChildren implements cascade.Provider.
func (c *Client) FetchChildren(ctx context.Context, level cascade.Level, parentID *cascade.EntityID, query string) ([]cascade.Entity, error) {
	spec, ok := c.hierarchy.Spec(level)
	if !ok {
		return nil, fmt.Errorf("httpapi: level %d: %w", level, cascade.ErrUnknownLevel)
	}
	endpoint, ok := c.endpoints[spec.Name]
	if !ok || endpoint.Path == "" {
		return nil, fmt.Errorf("%w %q", ErrNoEndpoint, spec.Name)
	}

	target := c.resolve(endpoint, parentID, query)
	body, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	records, err := hydrate.Records(body)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %s: %w", endpoint.Path, err)
	}
	entities, err := entityDecoder(endpoint).DecodeAll(spec.Name, records)
	if err != nil {
		return nil, err
	}
	if query != "" && endpoint.filtersLocally() {
		entities = matching(entities, query)
	}
	return entities, nil
}

func (c *Client) resolve(endpoint Endpoint, parentID *cascade.EntityID, query string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(endpoint.Path, "/")
	values := url.Values{}
	if endpoint.ParentParam != "" && parentID != nil {
		values.Set(endpoint.ParentParam, string(*parentID))
	}
	if endpoint.QueryParam != "" && query != "" {
		values.Set(endpoint.QueryParam, query)
	}
	u.RawQuery = values.Encode()
	return u.String()
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpapi: GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("httpapi: read %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method: http.MethodGet,
			URL:    target,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body[:min(len(body), 256)])),
		}
	}
	return body, nil
}

func entityDecoder(endpoint Endpoint) *hydrate.Decoder[cascade.Entity] {
	return hydrate.NewDecoder[cascade.Entity](
		hydrate.WithCustomDecoder[cascade.Entity](func(_ hydrate.Context, record map[string]any) (cascade.Entity, error) {
			return recordEntity(endpoint, record), nil
		}),
	)
}

// recordEntity maps a record onto an entity. Records without a usable id or
// name produce a malformed entity, which the resolver drops.
func recordEntity(endpoint Endpoint, record map[string]any) cascade.Entity {
	var out cascade.Entity
	if id, ok := hydrate.Scalar(record[endpoint.IDField]); ok {
		out.ID = cascade.EntityID(strings.TrimSpace(id))
	}
	if name, ok := hydrate.Scalar(record[endpoint.NameField]); ok {
		out.DisplayName = strings.TrimSpace(name)
	}
	if endpoint.ParentField != "" {
		if parent, ok := hydrate.Scalar(record[endpoint.ParentField]); ok && parent != "" {
			out.ParentID = cascade.IDPtr(cascade.EntityID(parent))
		}
	}
	if endpoint.CodeField != "" {
		if code, ok := hydrate.Scalar(record[endpoint.CodeField]); ok {
			out.Code = code
		}
	}
	attributes := make(map[string]any, len(record))
	for key, value := range record {
		if key == endpoint.IDField || key == endpoint.NameField {
			continue
		}
		attributes[key] = hydrate.Plain(value)
	}
	if len(attributes) > 0 {
		out.Attributes = attributes
	}
	return out
}

func matching(entities []cascade.Entity, query string) []cascade.Entity {
	query = cascade.NormalizeQuery(query)
	out := make([]cascade.Entity, 0, len(entities))
	for _, entity := range entities {
		if strings.Contains(cascade.NormalizeQuery(entity.DisplayName), query) ||
			strings.Contains(cascade.NormalizeQuery(entity.Code), query) {
			out = append(out, entity)
		}
	}
	return out
}
