// Package apiclient talks to a running portal over its JSON API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrInvalidResponse is returned when the server answers with a body the
// client cannot use, such as a login response without a token.
var ErrInvalidResponse = errors.New("Invalid response from server")

// Error is a non-2xx answer from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type (
	User struct {
		ID           int64  `json:"id"`
		Username     string `json:"username"`
		Role         string `json:"role"`
		RoleLabel    string `json:"role_label"`
		DisplayName  string `json:"display_name"`
		DistrictID   int64  `json:"district_id,omitempty"`
		AgencyID     int64  `json:"agency_id,omitempty"`
		VendorID     int64  `json:"vendor_id,omitempty"`
		Constituency string `json:"constituency,omitempty"`
	}

	Session struct {
		Token     string `json:"token"`
		User      User   `json:"user"`
		ExpiresAt string `json:"expires_at"`
	}

	Demand struct {
		ID           int64  `json:"id"`
		Reference    string `json:"reference"`
		Version      int64  `json:"version"`
		WorkID       int64  `json:"work_id"`
		WorkTitle    string `json:"work_title"`
		VendorName   string `json:"vendor_name"`
		DistrictName string `json:"district_name"`
		SchemeName   string `json:"scheme_name"`
		Date         string `json:"date"`
		Status       string `json:"status"`
		Remark       string `json:"remark"`
		Gross        string `json:"gross"`
		Deductions   string `json:"deductions"`
		NetPayable   string `json:"net_payable"`
	}

	Totals struct {
		Count      int            `json:"count"`
		Gross      string         `json:"gross"`
		Deductions string         `json:"deductions"`
		Net        string         `json:"net_payable"`
		ByStatus   map[string]int `json:"by_status"`
	}

	DemandList struct {
		Demands []Demand `json:"demands"`
		Totals  Totals   `json:"totals"`
	}

	// DemandFilter narrows ListDemands. Empty fields and "All" match everything.
	DemandFilter struct {
		FY       string
		District string
		Scheme   string
		Status   string
		Search   string
	}

	// Action is one step of the demand workflow.
	Action struct {
		Action string `json:"action"`
		Remark string `json:"remark,omitempty"`
		Amount string `json:"amount,omitempty"`
	}
)

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// OnLogin runs after a successful Login, before it returns.
	OnLogin func(Session)

	mu    sync.RWMutex
	token string
}

// New returns a client for the portal at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a session token and keeps it for later
// calls. A response without a token is ErrInvalidResponse and OnLogin is
// not called.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var sess Session
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, map[string]string{
		"username": username,
		"password": password,
	}, &sess)
	if err != nil {
		return Session{}, err
	}
	if sess.Token == "" {
		return Session{}, ErrInvalidResponse
	}
	c.SetToken(sess.Token)
	if c.OnLogin != nil {
		c.OnLogin(sess)
	}
	return sess, nil
}

// Logout ends the session and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	c.SetToken("")
	return err
}

// Me returns the user behind the current token.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &u)
	return u, err
}

func (c *Client) ListDemands(ctx context.Context, f DemandFilter) (DemandList, error) {
	q := url.Values{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(k, v)
		}
	}
	set("fy", f.FY)
	set("district", f.District)
	set("scheme", f.Scheme)
	set("status", f.Status)
	set("q", f.Search)

	var out DemandList
	err := c.do(ctx, http.MethodGet, "/api/demands", q, nil, &out)
	return out, err
}

// Act applies an approve, reject, send-back or resubmit action.
func (c *Client) Act(ctx context.Context, demandID int64, a Action) (Demand, error) {
	var d Demand
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/demands/%d/action", demandID), nil, a, &d)
	return d, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &Error{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return ErrInvalidResponse
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return ErrInvalidResponse
	}
	return nil
}
