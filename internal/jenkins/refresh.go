package jenkins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// RefreshConfig is an operator-scripted HTTP call that mints a fresh session
// token. Parameter values (and the URL) may reference current cookies as
// ${cookie.NAME}; CookieUpdates maps a cookie name to an extraction spec
// applied against the response:
//
//	body.json:<dot.path>   value at a JSON path in the body
//	header:<name>          a response header
//	body.regex:<pattern>   first capture group of a regex over the body
type RefreshConfig struct {
	URL           string            `toml:"url" mapstructure:"url"`
	Method        string            `toml:"method" mapstructure:"method"`
	Query         map[string]string `toml:"query" mapstructure:"query"`
	Form          map[string]string `toml:"form" mapstructure:"form"`
	JSON          map[string]string `toml:"json" mapstructure:"json"`
	Headers       map[string]string `toml:"headers" mapstructure:"headers"`
	CookieUpdates map[string]string `toml:"cookie_updates" mapstructure:"cookie_updates"`
}

var cookieRefPattern = regexp.MustCompile(`\$\{cookie\.([A-Za-z0-9_.-]+)\}`)

// RefreshCookie executes the configured refresh call and merges the
// extracted cookie values into the store. It reports whether a refresh was
// actually performed; an unconfigured script is a no-op, not an error.
func (c *Client) RefreshCookie(ctx context.Context) (bool, error) {
	cfg := c.refresh
	if cfg == nil || strings.TrimSpace(cfg.URL) == "" {
		return false, nil
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	// Configuration errors, not runtime retries.
	if len(cfg.Form) > 0 && len(cfg.JSON) > 0 {
		return false, fmt.Errorf("cookie refresh: form and json bodies are mutually exclusive")
	}
	if method == http.MethodGet && (len(cfg.Form) > 0 || len(cfg.JSON) > 0) {
		return false, fmt.Errorf("cookie refresh: GET requests cannot carry a body")
	}

	rawURL, err := c.resolveCookieRefs(cfg.URL)
	if err != nil {
		return false, err
	}

	if len(cfg.Query) > 0 {
		resolved, err := c.resolveCookieRefMap(cfg.Query)
		if err != nil {
			return false, err
		}
		q := url.Values{}
		for k, v := range resolved {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + q.Encode()
	}

	var body io.Reader = http.NoBody
	contentType := ""
	switch {
	case len(cfg.Form) > 0:
		resolved, err := c.resolveCookieRefMap(cfg.Form)
		if err != nil {
			return false, err
		}
		form := url.Values{}
		for k, v := range resolved {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case len(cfg.JSON) > 0:
		resolved, err := c.resolveCookieRefMap(cfg.JSON)
		if err != nil {
			return false, err
		}
		encoded, err := json.Marshal(resolved)
		if err != nil {
			return false, fmt.Errorf("cookie refresh: encode json body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	// The request is sent bare: no cookie header, since this call exists
	// to obtain one.
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return false, fmt.Errorf("cookie refresh: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range cfg.Headers {
		resolved, err := c.resolveCookieRefs(v)
		if err != nil {
			return false, err
		}
		req.Header.Set(k, resolved)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return false, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("cookie refresh: read response: %w", err)
	}

	updates := make(map[string]string, len(cfg.CookieUpdates))
	for name, spec := range cfg.CookieUpdates {
		value, err := extractCookieValue(spec, respBody, resp.Header)
		if err != nil {
			return false, fmt.Errorf("cookie refresh: %s: %w", name, err)
		}
		updates[name] = value
	}

	if len(updates) > 0 {
		c.cookies.UpdateFromPairs(updates)
		c.logger.Debug("cookie refresh applied", "keys", len(updates))
	}

	return true, nil
}

// resolveCookieRefs substitutes ${cookie.NAME} placeholders with current
// cookie store values. A reference to an absent cookie is an error.
func (c *Client) resolveCookieRefs(s string) (string, error) {
	var missing string
	resolved := cookieRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := cookieRefPattern.FindStringSubmatch(match)[1]
		value, ok := c.cookies.Value(name)
		if !ok {
			missing = name
			return match
		}
		return value
	})
	if missing != "" {
		return "", fmt.Errorf("cookie refresh: missing cookie value for %q", missing)
	}
	return resolved, nil
}

func (c *Client) resolveCookieRefMap(m map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(m))
	for k, v := range m {
		value, err := c.resolveCookieRefs(v)
		if err != nil {
			return nil, err
		}
		resolved[k] = value
	}
	return resolved, nil
}

// extractCookieValue applies one extraction spec against the response.
func extractCookieValue(spec string, body []byte, header http.Header) (string, error) {
	kind, arg, ok := strings.Cut(spec, ":")
	if !ok || arg == "" {
		return "", fmt.Errorf("invalid extraction spec %q", spec)
	}

	switch kind {
	case "body.json":
		value, err := jsonPathValue(body, arg)
		if err != nil {
			return "", fmt.Errorf("extraction spec %q: %w", spec, err)
		}
		return value, nil

	case "header":
		value := header.Get(arg)
		if value == "" {
			return "", fmt.Errorf("extraction spec %q: header not present", spec)
		}
		return value, nil

	case "body.regex":
		re, err := regexp.Compile(arg)
		if err != nil {
			return "", fmt.Errorf("extraction spec %q: %w", spec, err)
		}
		if re.NumSubexp() != 1 {
			return "", fmt.Errorf("extraction spec %q: pattern must have exactly one capture group", spec)
		}
		match := re.FindSubmatch(body)
		if match == nil {
			return "", fmt.Errorf("extraction spec %q: no match in response body", spec)
		}
		return string(match[1]), nil

	default:
		return "", fmt.Errorf("unknown extraction spec %q", spec)
	}
}

// jsonPathValue walks a dot-separated path through a JSON document.
func jsonPathValue(body []byte, path string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("response body is not JSON: %w", err)
	}

	current := doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("path element %q not found", key)
		}
		current, ok = obj[key]
		if !ok {
			return "", fmt.Errorf("path element %q not found", key)
		}
	}

	switch v := current.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("value at path is not a scalar")
	}
}
