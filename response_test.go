package roll

import (
	"errors"
	"net/http"
	"testing"
)

func TestNewResponseDefaultsTo200(t *testing.T) {
	r := newResponse()
	if r.Status() != http.StatusOK {
		t.Fatalf("expected 200, got %d", r.Status())
	}
}

func TestResponseSetStatusRejectsUnknownCode(t *testing.T) {
	r := newResponse()
	err := r.SetStatus(999)
	var he *HttpError
	if !errors.As(err, &he) || he.Status != 500 {
		t.Fatalf("expected 500 HttpError, got %v", err)
	}
	if r.Status() != http.StatusOK {
		t.Fatal("status should be unchanged after a rejected assignment")
	}
}

func TestResponseSetBodyVariants(t *testing.T) {
	r := newResponse()
	r.SetBody("hello")
	if string(r.bodyBytes) != "hello" || r.kind != bodyBytes {
		t.Fatalf("expected string body to become bytes, got %q kind=%v", r.bodyBytes, r.kind)
	}

	r.SetBody([]byte("raw"))
	if string(r.bodyBytes) != "raw" {
		t.Fatalf("expected raw bytes preserved, got %q", r.bodyBytes)
	}

	var called bool
	stream := BodyStream(func() ([]byte, error) { called = true; return nil, nil })
	r.SetBody(stream)
	if !r.IsChunked() {
		t.Fatal("expected BodyStream body to report chunked")
	}
	_, _ = r.bodyStream()
	if !called {
		t.Fatal("expected the stored stream function to be callable")
	}
}

func TestResponseSetJSONSetsContentType(t *testing.T) {
	r := newResponse()
	if err := r.SetJSON(map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if r.Headers.Get("CONTENT-TYPE") != "application/json" {
		t.Fatalf("expected application/json content type, got %q", r.Headers.Get("CONTENT-TYPE"))
	}
	if len(r.bodyBytes) == 0 {
		t.Fatal("expected encoded JSON body")
	}
}

func TestResponseRedirectDefaultsTo302(t *testing.T) {
	r := newResponse()
	if err := r.Redirect("/elsewhere", 0); err != nil {
		t.Fatal(err)
	}
	if r.Status() != http.StatusFound {
		t.Fatalf("expected 302, got %d", r.Status())
	}
	if r.Headers.Get("LOCATION") != "/elsewhere" {
		t.Fatalf("expected Location header set, got %q", r.Headers.Get("LOCATION"))
	}
}

func TestResponseBodylessRuleByMethod(t *testing.T) {
	r := newResponse()
	r.SetBody("ignored for HEAD")
	r.applyBodylessRule("HEAD")
	if !r.bodyless {
		t.Fatal("expected HEAD responses to be bodyless")
	}
}

func TestResponseBodylessRuleByStatus(t *testing.T) {
	for _, status := range []int{100, 101, 102, 204, 304} {
		r := newResponse()
		_ = r.SetStatus(status)
		r.applyBodylessRule("GET")
		if !r.bodyless {
			t.Fatalf("expected status %d to be bodyless", status)
		}
	}
	r := newResponse()
	_ = r.SetStatus(200)
	r.applyBodylessRule("GET")
	if r.bodyless {
		t.Fatal("expected 200 GET to carry a body")
	}
}

func TestResponseResetClearsState(t *testing.T) {
	r := newResponse()
	_ = r.SetStatus(404)
	r.SetBody("nope")
	r.cookies.Set("a", "b", CookieAttrs{})
	r.reset()
	if r.Status() != http.StatusOK || r.kind != bodyEmpty || r.cookies.Len() != 0 {
		t.Fatal("expected reset to restore defaults")
	}
}
