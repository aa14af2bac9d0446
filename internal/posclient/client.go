// Package posclient talks to the MedEasy REST API on behalf of the till.
package posclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medeasy/pos/domain"
	"medeasy/pos/internal/resilience"
	"medeasy/pos/internal/salecart"
	"medeasy/pos/internal/session"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultRefreshSkew = 30 * time.Second
	stockPageSize      = 200
)

// Client is the HTTP client for the pricing, sale and auth endpoints. It
// satisfies salecart.Quoter and salecart.Submitter.
type Client struct {
	baseURL string
	store   session.Store
	logger  zerolog.Logger

	public resilience.HTTPClient
	authed resilience.HTTPClient
}

type options struct {
	httpClient *http.Client
	breaker    *resilience.Breaker
	timeout    time.Duration
	skew       time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient sets the underlying http.Client. Its Transport is reused for
// every request.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithBreaker guards calls with b. Without one no breaker is used.
func WithBreaker(b *resilience.Breaker) Option { return func(o *options) { o.breaker = b } }

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithRefreshSkew refreshes the access token when it expires within d.
func WithRefreshSkew(d time.Duration) Option { return func(o *options) { o.skew = d } }

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

// New returns a client for the API at baseURL. The session store is read
// before each authenticated call and updated on login, refresh and logout.
func New(baseURL string, store session.Store, opts ...Option) *Client {
	o := options{
		timeout: defaultTimeout,
		skew:    defaultRefreshSkew,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if store == nil {
		store = &session.MemoryStore{}
	}
	base := http.DefaultTransport
	if o.httpClient != nil && o.httpClient.Transport != nil {
		base = o.httpClient.Transport
	}
	baseURL = strings.TrimRight(baseURL, "/")

	tt := &tokenTransport{
		base:    base,
		baseURL: baseURL,
		store:   store,
		skew:    o.skew,
		now:     o.now,
		logger:  o.logger,
	}
	return &Client{
		baseURL: baseURL,
		store:   store,
		logger:  o.logger,
		public:  resilience.HTTPClient{Client: &http.Client{Transport: base}, Breaker: o.breaker, Timeout: o.timeout},
		authed:  resilience.HTTPClient{Client: &http.Client{Transport: tt}, Breaker: o.breaker, Timeout: o.timeout},
	}
}

// Quote prices quantity units of a medicine.
func (c *Client) Quote(ctx context.Context, medicineID int64, quantity int) (salecart.Quote, error) {
	var out domain.QuoteResponse
	err := c.doJSON(ctx, c.authed, http.MethodPost, "/sales/quote", domain.QuoteRequest{MedicineID: medicineID, Quantity: quantity}, nil, &out)
	if err != nil {
		return salecart.Quote{}, err
	}
	return salecart.Quote{MedicineID: out.MedicineID, Quantity: out.Quantity, Total: out.TotalPrice}, nil
}

// CreateSale submits a sale. Each call carries a fresh Idempotency-Key.
func (c *Client) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Receipt, error) {
	var out domain.Receipt
	hdr := http.Header{"Idempotency-Key": []string{uuid.NewString()}}
	if err := c.doJSON(ctx, c.authed, http.MethodPost, "/sales/", req, hdr, &out); err != nil {
		return domain.Receipt{}, err
	}
	return out, nil
}

// Medicines lists one page of the catalogue with current stock.
func (c *Client) Medicines(ctx context.Context, skip, limit int) ([]domain.Medicine, error) {
	var out []domain.Medicine
	if err := c.doJSON(ctx, c.authed, http.MethodGet, pagePath("/medicines/", skip, limit), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stock fetches the whole catalogue into a snapshot for the cart.
func (c *Client) Stock(ctx context.Context) (salecart.Stock, error) {
	var all []domain.Medicine
	for skip := 0; ; skip += stockPageSize {
		page, err := c.Medicines(ctx, skip, stockPageSize)
		if err != nil {
			return salecart.Stock{}, err
		}
		all = append(all, page...)
		if len(page) < stockPageSize {
			break
		}
	}
	return salecart.NewStock(all), nil
}

// Login exchanges credentials for tokens and stores the session.
func (c *Client) Login(ctx context.Context, username, password string) (domain.Token, error) {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token domain.Token
	if err := c.send(ctx, c.public, req, &token); err != nil {
		return domain.Token{}, err
	}
	if err := c.store.Save(session.Session{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, User: token.User}); err != nil {
		return domain.Token{}, fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

// Refresh exchanges the stored refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context) (domain.Token, error) {
	sess, err := c.store.Load()
	if err != nil {
		return domain.Token{}, err
	}
	var token domain.Token
	if err := c.doJSON(ctx, c.public, http.MethodPost, refreshPath, map[string]string{"refresh_token": sess.RefreshToken}, nil, &token); err != nil {
		return domain.Token{}, err
	}
	sess.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		sess.RefreshToken = token.RefreshToken
	}
	if token.User != nil {
		sess.User = token.User
	}
	if err := c.store.Save(sess); err != nil {
		return domain.Token{}, fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

// Logout forgets the stored session. Tokens are stateless on the server.
func (c *Client) Logout(context.Context) error {
	return c.store.Clear()
}

// Me returns the logged-in user.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var u domain.User
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/v1/auth/me", nil, nil, &u)
	return u, err
}

// Sales lists recent sales, newest first.
func (c *Client) Sales(ctx context.Context, skip, limit int) ([]domain.Sale, error) {
	var out []domain.Sale
	if err := c.doJSON(ctx, c.authed, http.MethodGet, pagePath("/sales/", skip, limit), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Receipt fetches the receipt of a completed sale.
func (c *Client) Receipt(ctx context.Context, saleID int64) (domain.Receipt, error) {
	var out domain.Receipt
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/sales/"+strconv.FormatInt(saleID, 10), nil, nil, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, hc resilience.HTTPClient, method, path string, in any, hdr http.Header, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	return c.send(ctx, hc, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(ctx context.Context, hc resilience.HTTPClient, req *http.Request, out any) error {
	start := time.Now()
	resp, cancel, err := hc.Do(ctx, req)
	if err != nil {
		if errors.Is(err, resilience.ErrOpenCircuit) {
			c.logger.Warn().Str("path", req.URL.Path).Msg("server unavailable, circuit open")
		}
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func pagePath(path string, skip, limit int) string {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
