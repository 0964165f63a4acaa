// Package loraclient talks to the LoRa REST service and adds the temporal
// read conventions of the organisation services on top of it.
package loraclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
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

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/pkg/virkning"
)

// ErrUnavailable marks transport failures and server-side errors.
var ErrUnavailable = errors.New("lora unavailable")

var _ lora.Repository = (*Client)(nil)

var tracer = otel.Tracer("mora-loraclient")

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse LoRa url")
	}
	c := &Client{baseURL: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type listResponse struct {
	Results [][]lora.Entry `json:"results"`
}

type searchResponse struct {
	Results [][]string `json:"results"`
}

type writeResponse struct {
	UUID string `json:"uuid"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) Fetch(ctx context.Context, kind lora.Kind, ids []uuid.UUID, params lora.ReadParams) ([]lora.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := readQuery(params)
	for _, id := range ids {
		q.Add(lora.KeyUUID, id.String())
	}
	var resp listResponse
	if err := c.do(ctx, "fetch", http.MethodGet, c.path(kind, uuid.Nil), q, nil, &resp); err != nil {
		return nil, err
	}
	var out []lora.Entry
	for _, batch := range resp.Results {
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, kind lora.Kind, filter lora.Filter, params lora.ReadParams, page lora.Page) ([]uuid.UUID, error) {
	q := readQuery(params)
	for key, values := range filter {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	if page.Limit > 0 {
		q.Set("maximalantalresultater", strconv.Itoa(page.Limit))
	}
	if page.Start > 0 {
		q.Set("foersteresultat", strconv.Itoa(page.Start))
	}
	var resp searchResponse
	if err := c.do(ctx, "search", http.MethodGet, c.path(kind, uuid.Nil), q, nil, &resp); err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, batch := range resp.Results {
		for _, raw := range batch {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse search result %q", raw)
			}
			out = append(out, id)
		}
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, kind lora.Kind, id uuid.UUID, obj *lora.Object) (uuid.UUID, error) {
	method := http.MethodPost
	if id != uuid.Nil {
		method = http.MethodPut
	}
	var resp writeResponse
	if err := c.do(ctx, "create", method, c.path(kind, id), nil, obj, &resp); err != nil {
		return uuid.Nil, err
	}
	created, err := uuid.Parse(resp.UUID)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to parse created uuid %q", resp.UUID)
	}
	return created, nil
}

// Update patches the object. LoRa has no conditional write, so a non-zero
// ifUnchangedSince is checked against a fresh read right before the patch;
// this narrows but does not close the window for a concurrent writer.
func (c *Client) Update(ctx context.Context, kind lora.Kind, id uuid.UUID, obj *lora.Object, ifUnchangedSince time.Time) (uuid.UUID, error) {
	if !ifUnchangedSince.IsZero() {
		entries, err := c.Fetch(ctx, kind, []uuid.UUID{id}, lora.CurrentRegistration(virkning.Always()))
		if err != nil {
			return uuid.Nil, err
		}
		if len(entries) == 0 {
			return uuid.Nil, errors.Wrapf(lora.ErrNotFound, "%s %s", kind, id)
		}
		reg, ok := entries[0].CurrentRegistration()
		if !ok || !reg.From.Timestamp.Time().Equal(ifUnchangedSince) {
			return uuid.Nil, errors.Wrapf(lora.ErrConflict, "%s %s", kind, id)
		}
	}
	var resp writeResponse
	if err := c.do(ctx, "update", http.MethodPatch, c.path(kind, id), nil, obj, &resp); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (c *Client) path(kind lora.Kind, id uuid.UUID) *url.URL {
	p := string(kind)
	if id != uuid.Nil {
		p += "/" + id.String()
	}
	return c.baseURL.ResolveReference(&url.URL{Path: p})
}

func readQuery(params lora.ReadParams) url.Values {
	q := url.Values{}
	q.Set("virkningfra", params.Validity.From.String())
	q.Set("virkningtil", params.Validity.To.String())
	if params.Registered != nil {
		q.Set("registreretfra", params.Registered.From.String())
		q.Set("registrerettil", params.Registered.To.String())
	}
	return q
}

func (c *Client) do(ctx context.Context, op, method string, u *url.URL, q url.Values, body, out any) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lora."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("lora.path", u.Path),
	))
	defer func() {
		recordRequest(op, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := *u
	if q != nil {
		target.RawQuery = q.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode LoRa payload")
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return errors.Wrap(err, "failed to build LoRa request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "%s %s: %v", method, u.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "failed to read LoRa response: %v", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(lora.ErrNotFound, "%s %s", method, u.Path)
	case resp.StatusCode >= 500:
		return errors.Wrapf(ErrUnavailable, "%s %s: status %d: %s", method, u.Path, resp.StatusCode, message(raw))
	case resp.StatusCode >= 400:
		return errors.Errorf("lora rejected %s %s: status %d: %s", method, u.Path, resp.StatusCode, message(raw))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "failed to decode LoRa response")
	}
	return nil
}

func message(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}
