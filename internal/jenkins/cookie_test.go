package jenkins

import (
	"net/http"
	"testing"
)

func respWithCookies(cookies ...string) *http.Response {
	h := http.Header{}
	for _, c := range cookies {
		h.Add("Set-Cookie", c)
	}
	return &http.Response{Header: h}
}

func TestCookieStoreLastWriteWins(t *testing.T) {
	s := NewCookieStore("session=aaa; csrf=111", nil, nil)

	s.UpdateFromResponse(respWithCookies("session=bbb; Path=/; HttpOnly"))
	s.UpdateFromPairs(map[string]string{"csrf": "222"})
	s.UpdateFromResponse(respWithCookies("session=ccc"))

	if got := s.HeaderValue(); got != "csrf=222; session=ccc" {
		t.Errorf("HeaderValue() = %q, want csrf=222; session=ccc", got)
	}
	if v, ok := s.Value("session"); !ok || v != "ccc" {
		t.Errorf("Value(session) = %q, %v", v, ok)
	}
}

func TestCookieStoreMergePreservesOtherKeys(t *testing.T) {
	s := NewCookieStore("a=1; b=2", nil, nil)
	s.UpdateFromResponse(respWithCookies("b=3"))

	if got := s.HeaderValue(); got != "a=1; b=3" {
		t.Errorf("HeaderValue() = %q, want a=1; b=3", got)
	}
}

func TestCookieStorePersistsOncePerDistinctSubset(t *testing.T) {
	var writes []string
	persist := func(subset string) (bool, error) {
		writes = append(writes, subset)
		return true, nil
	}

	s := NewCookieStore("token=t0", []string{"token"}, persist)

	// Transient keys never reach the persist callback.
	s.UpdateFromResponse(respWithCookies("JSESSIONID=xyz"))
	if len(writes) != 0 {
		t.Fatalf("persist called for a non-persisted key: %v", writes)
	}

	s.UpdateFromPairs(map[string]string{"token": "t1"})
	s.UpdateFromPairs(map[string]string{"token": "t1", "JSESSIONID": "other"})
	s.UpdateFromPairs(map[string]string{"token": "t2"})

	want := []string{"token=t1", "token=t2"}
	if len(writes) != len(want) {
		t.Fatalf("persist writes = %v, want %v", writes, want)
	}
	for i := range want {
		if writes[i] != want[i] {
			t.Fatalf("persist writes = %v, want %v", writes, want)
		}
	}
}

func TestCookieStoreDerivesPersistKeysFromInitialCookie(t *testing.T) {
	var writes int
	s := NewCookieStore("token=t0", nil, func(string) (bool, error) {
		writes++
		return true, nil
	})

	s.UpdateFromPairs(map[string]string{"token": "t1"})
	if writes != 1 {
		t.Errorf("persist calls = %d, want 1", writes)
	}
}

func TestCookieStoreEmptyInitial(t *testing.T) {
	s := NewCookieStore("", nil, nil)
	if got := s.HeaderValue(); got != "" {
		t.Errorf("HeaderValue() = %q, want empty", got)
	}
	s.UpdateFromResponse(respWithCookies("session=abc; Secure"))
	if got := s.HeaderValue(); got != "session=abc" {
		t.Errorf("HeaderValue() = %q, want session=abc", got)
	}
}
