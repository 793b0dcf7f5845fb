package urlguard

import (
	"errors"
	"net"
	"testing"
)

func staticLookup(addrs map[string][]string) func(string) ([]string, error) {
	return func(host string) ([]string, error) {
		if a, ok := addrs[host]; ok {
			return a, nil
		}
		return nil, errors.New("no such host")
	}
}

func TestCheck(t *testing.T) {
	g := Guard{Lookup: staticLookup(map[string][]string{
		"example.com":  {"93.184.216.34"},
		"intranet.lan": {"10.1.2.3"},
	})}
	tests := []struct {
		url  string
		want error
	}{
		{"https://example.com/page", nil},
		{"http://example.com", nil},
		{"http://unresolvable.test/", nil},
		{"ftp://example.com/file", ErrScheme},
		{"javascript:alert(1)", ErrScheme},
		{"file:///etc/passwd", ErrScheme},
		{"http://127.0.0.1:8080/", ErrPrivate},
		{"http://localhost/", ErrPrivate},
		{"http://[::1]/", ErrPrivate},
		{"http://192.168.1.1/", ErrPrivate},
		{"http://172.16.0.1/", ErrPrivate},
		{"http://intranet.lan/", ErrPrivate},
	}
	for _, tt := range tests {
		err := g.Check(tt.url)
		if tt.want == nil && err != nil {
			t.Errorf("Check(%q): got %v, want nil", tt.url, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("Check(%q): got %v, want %v", tt.url, err, tt.want)
		}
	}
}

func TestCheck_AllowPrivate(t *testing.T) {
	g := Guard{AllowPrivate: true}
	if err := g.Check("http://127.0.0.1:8080/"); err != nil {
		t.Fatalf("loopback with AllowPrivate: got %v", err)
	}
	if err := g.Check("ftp://127.0.0.1/"); !errors.Is(err, ErrScheme) {
		t.Fatalf("scheme still checked: got %v", err)
	}
}

func TestIsPrivate(t *testing.T) {
	for ip, want := range map[string]bool{
		"127.0.0.1":   true,
		"10.0.0.1":    true,
		"100.64.0.1":  true,
		"169.254.1.1": true,
		"0.0.0.0":     true,
		"fd00::1":     true,
		"8.8.8.8":     false,
		"1.1.1.1":     false,
	} {
		if got := IsPrivate(net.ParseIP(ip)); got != want {
			t.Errorf("IsPrivate(%s): got %v, want %v", ip, got, want)
		}
	}
}
