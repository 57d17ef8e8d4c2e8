package realip_test

import (
	"net/http/httptest"
	"testing"

	"github.com/ideaforge/ideaforge-go/internal/platform/http/realip"
)

func TestDirectConnectionIgnoresForwardedHeaders(t *testing.T) {
	tp := realip.New([]string{"10.0.0.0/8"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:4321"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")

	if got := tp.GetClientIPString(r); got != "203.0.113.7" {
		t.Errorf("expected direct address, got %s", got)
	}
}

func TestTrustedProxyUsesForwardedFor(t *testing.T) {
	tp := realip.New([]string{"127.0.0.0/8"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "127.0.0.1:9999"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.1.1.1")

	if got := tp.GetClientIPString(r); got != "198.51.100.1" {
		t.Errorf("expected first forwarded address, got %s", got)
	}
}

func TestTrustedProxyFallsBackToRealIP(t *testing.T) {
	tp := realip.New([]string{"127.0.0.1"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "127.0.0.1:9999"
	r.Header.Set("X-Real-IP", "198.51.100.2")

	if got := tp.GetClientIPString(r); got != "198.51.100.2" {
		t.Errorf("expected X-Real-IP address, got %s", got)
	}
}

func TestInvalidRemoteAddr(t *testing.T) {
	tp := realip.New(nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "not-an-address"

	if got := tp.GetClientIPString(r); got != "unknown" {
		t.Errorf("expected unknown, got %s", got)
	}
}
