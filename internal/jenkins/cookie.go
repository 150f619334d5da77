package jenkins

import (
	"net/http"
	"sort"
	"strings"
	"sync"
)

// PersistFunc writes the filtered cookie subset to durable config. It
// returns true when the write actually happened.
type PersistFunc func(subset string) (bool, error)

// CookieStore holds the current session cookie header. Set-Cookie updates
// are merged in memory; only operator-configured keys are ever written back
// to config, and only when that subset changes.
type CookieStore struct {
	mu sync.Mutex

	// current is the full in-memory cookie header, transient keys
	// (JSESSIONID and friends) included.
	current string

	// persistKeys limits what reaches the config file.
	persistKeys map[string]bool

	// persisted is the last subset written, used to suppress redundant
	// writes.
	persisted string

	persist PersistFunc
}

// NewCookieStore seeds the store with an initial cookie header. persistKeys
// names the cookie keys worth writing back; when empty, the keys present in
// the initial cookie are used.
func NewCookieStore(initial string, persistKeys []string, persist PersistFunc) *CookieStore {
	keys := make(map[string]bool, len(persistKeys))
	for _, k := range persistKeys {
		if k != "" {
			keys[k] = true
		}
	}

	if len(keys) == 0 {
		for k := range parseCookieMap(initial) {
			keys[k] = true
		}
	}

	s := &CookieStore{
		current:     initial,
		persistKeys: keys,
		persist:     persist,
	}
	if len(keys) > 0 {
		s.persisted = filterCookieString(initial, keys)
	}

	return s
}

// HeaderValue returns the current cookie header, or "" when none is set.
func (s *CookieStore) HeaderValue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Value returns the value of one cookie key from the current header.
func (s *CookieStore) Value(name string) (string, bool) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	v, ok := parseCookieMap(current)[name]
	return v, ok
}

// UpdateFromResponse merges every Set-Cookie header of resp into the store,
// ignoring cookie attributes. Last write wins per key.
func (s *CookieStore) UpdateFromResponse(resp *http.Response) {
	var updates [][2]string
	for _, raw := range resp.Header.Values("Set-Cookie") {
		if name, value, ok := parseCookiePair(raw); ok {
			updates = append(updates, [2]string{name, value})
		}
	}
	s.applyUpdates(updates)
}

// UpdateFromPairs merges cookies obtained out-of-band (e.g. extracted by the
// refresh protocol) through the same merge+persist path.
func (s *CookieStore) UpdateFromPairs(pairs map[string]string) {
	updates := make([][2]string, 0, len(pairs))
	for name, value := range pairs {
		updates = append(updates, [2]string{name, value})
	}
	s.applyUpdates(updates)
}

// applyUpdates merges then conditionally persists, all under the lock so a
// concurrent response cannot interleave a partial merge with the persist
// decision.
func (s *CookieStore) applyUpdates(updates [][2]string) {
	if len(updates) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := parseCookieMap(s.current)
	for _, kv := range updates {
		merged[kv[0]] = kv[1]
	}
	s.current = cookieMapToString(merged)

	if len(s.persistKeys) == 0 || s.persist == nil {
		return
	}

	subset := filterCookieString(s.current, s.persistKeys)
	if subset == "" || subset == s.persisted {
		return
	}

	if ok, err := s.persist(subset); err == nil && ok {
		s.persisted = subset
	}
}

// parseCookiePair reads "name=value; attr; attr" into (name, value).
func parseCookiePair(raw string) (string, string, bool) {
	pair, _, _ := strings.Cut(raw, ";")
	name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

// parseCookieMap reads "a=b; c=d" into a map, ignoring invalid entries.
func parseCookieMap(cookie string) map[string]string {
	m := make(map[string]string)
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		m[name] = strings.TrimSpace(value)
	}
	return m
}

func filterCookieString(cookie string, keys map[string]bool) string {
	keep := make(map[string]string)
	for k, v := range parseCookieMap(cookie) {
		if keys[k] {
			keep[k] = v
		}
	}
	return cookieMapToString(keep)
}

// cookieMapToString serializes with sorted keys so comparisons and config
// writes are stable.
func cookieMapToString(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, "; ")
}
