package security

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscout/internal/domain"
)

func TestIsPrivateAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"192.168.0.1", true},
		{"127.0.0.1", true},
		{"127.255.255.255", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fd12:3456::1", true},
		{"fe80::1", true},
		{"::ffff:127.0.0.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"172.15.255.255", false},
		{"172.32.0.1", false},
		{"2607:f8b0:4004:800::200e", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPrivateAddr(netip.MustParseAddr(tt.addr)))
			assert.Equal(t, tt.want, IsPrivateIP(net.ParseIP(tt.addr)))
		})
	}
}

func TestIsPrivateIPRejectsGarbage(t *testing.T) {
	assert.False(t, IsPrivateIP(nil))
	assert.False(t, IsPrivateIP(net.IP{1, 2, 3}))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public host", "https://example.com", false},
		{"public ip", "http://8.8.8.8/path", false},
		{"search endpoint", "https://html.duckduckgo.com/html/?q=go", false},
		{"mixed case scheme", "HTTPS://Example.COM/Path", false},
		{"just above 172.16/12", "http://172.32.0.1/", false},
		{"just below 172.16/12", "http://172.15.0.1/", false},

		{"loopback", "http://127.0.0.1/admin", true},
		{"short loopback", "https://127.1/", true},
		{"rfc1918 192", "http://192.168.1.1/", true},
		{"rfc1918 10 with port", "http://10.0.0.1:8080/admin", true},
		{"rfc1918 172 low", "http://172.16.0.1/", true},
		{"rfc1918 172 high", "http://172.31.255.255/", true},
		{"localhost", "http://localhost:3000/", true},
		{"localhost upper", "http://LOCALHOST/", true},
		{"ipv6 loopback", "http://[::1]/", true},
		{"mapped loopback", "http://[::ffff:127.0.0.1]/", true},
		{"metadata", "http://169.254.169.254/latest/meta-data", true},

		{"empty", "", true},
		{"no scheme", "not-a-url", true},
		{"missing scheme", "://missing-scheme", true},
		{"ftp", "ftp://example.com/file", true},
		{"file", "file:///etc/passwd", true},
		{"javascript", "javascript:alert(1)", true},
		{"no host", "http:///path", true},
		{"leading space", " http://example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrSSRFBlocked)
		})
	}
}

func TestIsBlockedHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"localhost.", true},
		{"api.localhost", true},
		{"127.0.0.53", true},
		{"10.1.2.3", true},
		{"192.168.0.10", true},
		{"172.20.1.1", true},
		{"172.3.1.1", false},
		{"172.160.1.1", false},
		{"example.com", false},
		{"1.1.1.1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsBlockedHost(tt.host), tt.host)
	}
}

func TestSSRFSafeTransportRefusesReservedAddresses(t *testing.T) {
	tr := NewSSRFSafeTransport()
	require.NotNil(t, tr.DialContext)
	assert.Nil(t, tr.Proxy, "a proxy would move the dial away from the target")

	for _, addr := range []string{"127.0.0.1:80", "[::1]:443", "10.0.0.7:8080"} {
		_, err := tr.DialContext(t.Context(), "tcp", addr)
		require.Error(t, err, addr)
		assert.ErrorIs(t, err, domain.ErrSSRFBlocked, addr)
		assert.Equal(t, domain.CodeSSRFBlocked, domain.ErrorCodeOf(err), addr)
	}
}

func TestSSRFSafeTransportBadAddress(t *testing.T) {
	_, err := NewSSRFSafeTransport().DialContext(t.Context(), "tcp", "no-port")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSSRFBlocked)
}
