package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const userAgent = "jenkins-cli"

// StatusError is a non-2xx HTTP response that survived the auth-retry
// ladder. Callers never see the intermediate 401/403s that triggered a
// crumb fetch or cookie refresh.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", classifyStatus(e.Code), e.Code, e.URL)
}

func classifyStatus(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "unauthorized: please check your credentials"
	case http.StatusForbidden:
		return "forbidden: you may not have sufficient permissions"
	case http.StatusNotFound:
		return "not found: the requested resource does not exist"
	default:
		return "request failed"
	}
}

// crumbResponse is the CSRF token payload from /crumbIssuer/api/json.
type crumbResponse struct {
	Field string `json:"crumbRequestField"`
	Crumb string `json:"crumb"`
}

// newRequest builds a request carrying basic auth and the current cookie
// header, plus any one-off extra headers (e.g. a CSRF crumb).
func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader, extra map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.username != "" {
		req.SetBasicAuth(c.username, c.token)
	}
	if cookie := c.cookies.HeaderValue(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	return req, nil
}

// send performs the request, classifying transport failures for diagnostics.
// Set-Cookie headers on any response are merged into the cookie store before
// the response is returned; non-2xx statuses are the caller's problem.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}

	c.cookies.UpdateFromResponse(resp)

	return resp, nil
}

// classifyTransportErr distinguishes connect/timeout/other failures for the
// operator's benefit. None of these are retried; retries are reserved for
// auth-class HTTP statuses.
func classifyTransportErr(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		switch {
		case urlErr.Timeout():
			return fmt.Errorf("request timed out: %w", err)
		case strings.Contains(urlErr.Err.Error(), "connect"):
			return fmt.Errorf("connection error: %w", err)
		}
	}
	return fmt.Errorf("request error: %w", err)
}

// getWithRefresh GETs url, retrying once after a cookie refresh on 401/403.
func (c *Client) getWithRefresh(ctx context.Context, rawURL string) (*http.Response, error) {
	c.ensureFreshCookie(ctx)

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drainAndClose(resp)
		if _, err := c.RefreshCookie(ctx); err != nil {
			c.logger.Debug("cookie refresh failed", "error", err)
			return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
		}
		resp, err = c.get(ctx, rawURL)
		if err != nil {
			return nil, err
		}
	}

	if !isSuccess(resp.StatusCode) {
		code := resp.StatusCode
		drainAndClose(resp)
		return nil, &StatusError{Code: code, URL: rawURL}
	}

	return resp, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, http.NoBody, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

// getJSON GETs url (with the refresh ladder) and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.getWithRefresh(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", rawURL, err)
	}
	return nil
}

// postFormWithCrumb POSTs a form, surviving session expiry and CSRF
// protection transparently:
//
//	401 -> refresh cookie, retry once
//	403 -> fetch crumb, retry with crumb; if that still 401/403s,
//	       refresh cookie and retry a final time
//
// At most one crumb fetch and one cookie refresh happen per logical call;
// the layer never loops on auth failures.
func (c *Client) postFormWithCrumb(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	c.ensureFreshCookie(ctx)

	resp, err := c.postForm(ctx, rawURL, form, nil)
	if err != nil {
		return nil, err
	}
	if isSuccess(resp.StatusCode) {
		return resp, nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		drainAndClose(resp)
		if _, err := c.RefreshCookie(ctx); err != nil {
			return nil, &StatusError{Code: http.StatusUnauthorized, URL: rawURL}
		}
		resp, err = c.postForm(ctx, rawURL, form, nil)
		if err != nil {
			return nil, err
		}

	case http.StatusForbidden:
		drainAndClose(resp)
		crumb, err := c.fetchCrumb(ctx)
		if err != nil {
			return nil, &StatusError{Code: http.StatusForbidden, URL: rawURL}
		}
		extra := map[string]string{crumb.Field: crumb.Crumb}

		resp, err = c.postForm(ctx, rawURL, form, extra)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			drainAndClose(resp)
			if _, err := c.RefreshCookie(ctx); err != nil {
				return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
			}
			resp, err = c.postForm(ctx, rawURL, form, extra)
			if err != nil {
				return nil, err
			}
		}
	}

	if !isSuccess(resp.StatusCode) {
		code := resp.StatusCode
		drainAndClose(resp)
		return nil, &StatusError{Code: code, URL: rawURL}
	}

	return resp, nil
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values, extra map[string]string) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if len(form) > 0 {
		body = strings.NewReader(form.Encode())
	}

	req, err := c.newRequest(ctx, http.MethodPost, rawURL, body, extra)
	if err != nil {
		return nil, err
	}
	if len(form) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return c.send(req)
}

// fetchCrumb asks the crumb issuer for a CSRF token.
func (c *Client) fetchCrumb(ctx context.Context) (*crumbResponse, error) {
	rawURL := c.baseURL + "/crumbIssuer/api/json"

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	var crumb crumbResponse
	if err := json.NewDecoder(resp.Body).Decode(&crumb); err != nil {
		return nil, fmt.Errorf("failed to parse crumb response: %w", err)
	}
	if crumb.Field == "" || crumb.Crumb == "" {
		return nil, fmt.Errorf("crumb issuer returned an empty crumb")
	}

	return &crumb, nil
}

// ensureFreshCookie performs at most one eager refresh before the very
// first API call of this client, regardless of how many endpoints startup
// touches.
func (c *Client) ensureFreshCookie(ctx context.Context) {
	if c.refresh == nil || !c.refreshAttempted.CompareAndSwap(false, true) {
		return
	}
	if _, err := c.RefreshCookie(ctx); err != nil {
		c.logger.Debug("eager cookie refresh failed", "error", err)
	}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
