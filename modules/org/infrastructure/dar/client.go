// Package dar looks up Danish addresses in the DAWA address service.
package dar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound    = errors.New("address not found")
	ErrUnavailable = errors.New("address service unavailable")
)

var tracer = otel.Tracer("mora-dar")

// Address is a resolved DAR address.
type Address struct {
	ID   uuid.UUID `json:"uuid"`
	Name string    `json:"name"`
	Href string    `json:"href"`
}

// Suggestion is one autocomplete hit.
type Suggestion struct {
	ID   uuid.UUID `json:"uuid"`
	Name string    `json:"name"`
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse DAR url")
	}
	c := &Client{baseURL: u, http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type addressResponse struct {
	ID          string `json:"id"`
	Designation string `json:"adressebetegnelse"`
	Access      struct {
		Point struct {
			Coordinates []float64 `json:"koordinater"`
		} `json:"adgangspunkt"`
	} `json:"adgangsadresse"`
}

type suggestionResponse struct {
	Text    string `json:"tekst"`
	Address struct {
		ID string `json:"id"`
	} `json:"adresse"`
}

// Get resolves one address to its display name and a map link.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*Address, error) {
	var resp addressResponse
	if err := c.get(ctx, "adresser/"+id.String(), url.Values{"noformat": {"1"}}, &resp); err != nil {
		return nil, err
	}
	addr := &Address{ID: id, Name: resp.Designation}
	if coords := resp.Access.Point.Coordinates; len(coords) == 2 {
		addr.Href = fmt.Sprintf("https://www.openstreetmap.org/?mlon=%s&mlat=%s&zoom=16",
			strconv.FormatFloat(coords[0], 'f', -1, 64),
			strconv.FormatFloat(coords[1], 'f', -1, 64),
		)
	}
	return addr, nil
}

// Autocomplete searches addresses, restricted to one municipality when
// municipality is positive.
func (c *Client) Autocomplete(ctx context.Context, q string, municipality int) ([]Suggestion, error) {
	params := url.Values{"noformat": {"1"}, "q": {q}}
	if municipality > 0 {
		params.Set("kommunekode", strconv.Itoa(municipality))
	}
	var resp []suggestionResponse
	if err := c.get(ctx, "adresser/autocomplete", params, &resp); err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(resp))
	for _, s := range resp {
		id, err := uuid.Parse(s.Address.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid address id %q", s.Address.ID)
		}
		out = append(out, Suggestion{ID: id, Name: s.Text})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) (err error) {
	ctx, span := tracer.Start(ctx, "dar.get", trace.WithAttributes(attribute.String("dar.path", path)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := c.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: params.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to build DAR request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "MORA/0.1")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "GET %s", path)
	case resp.StatusCode >= 400:
		return errors.Wrapf(ErrUnavailable, "GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode DAR response")
	}
	return nil
}
