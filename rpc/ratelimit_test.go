package rpc

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, cfg RateLimitConfig) *rateLimiter {
	t.Helper()
	limiter, err := newRateLimiter(cfg)
	require.NoError(t, err)
	return limiter
}

func requestFrom(remote, forwarded string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	return req
}

func TestClientSourceIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	limiter := newLimiter(t, RateLimitConfig{})
	require.Equal(t, "192.0.2.10", limiter.clientSource(requestFrom("192.0.2.10:7000", "198.51.100.8")))
}

func TestClientSourceHonoursForwardedForFromTrustedProxy(t *testing.T) {
	limiter := newLimiter(t, RateLimitConfig{TrustedProxies: []string{"10.0.0.1", "172.16.0.0/12"}})

	require.Equal(t, "198.51.100.7", limiter.clientSource(requestFrom("10.0.0.1:8080", "198.51.100.7")))
	// The left-most entry is client supplied; the right-most untrusted hop wins.
	require.Equal(t, "198.51.100.7", limiter.clientSource(requestFrom("10.0.0.1:8080", "203.0.113.9, 198.51.100.7, 172.16.3.4")))
	// Only trusted hops: fall back to the last one seen.
	require.Equal(t, "172.16.3.4", limiter.clientSource(requestFrom("10.0.0.1:8080", "172.16.3.4")))
	require.Equal(t, "10.0.0.1", limiter.clientSource(requestFrom("10.0.0.1:8080", "")))
}

func TestRateLimitSpoofedForwardedFor(t *testing.T) {
	limiter := newLimiter(t, RateLimitConfig{RequestsPerMinute: 60, Burst: 3})

	for i := 0; i < 3; i++ {
		req := requestFrom("10.1.1.1:9000", fmt.Sprintf("198.51.100.%d", i))
		require.True(t, limiter.allow(limiter.clientSource(req)), "request %d", i)
	}
	req := requestFrom("10.1.1.1:9000", "198.51.100.250")
	require.False(t, limiter.allow(limiter.clientSource(req)))
}

func TestSubmitRateLimitIgnoresRotatedForwardedFor(t *testing.T) {
	node := newTestNode(t)
	handler := newTestServer(t, node, nil, ServerConfig{RateLimit: RateLimitConfig{RequestsPerMinute: 1, Burst: 1}}).Handler()
	key := newKey(t)

	res := callRPCWithHeaders(t, handler, map[string]string{"X-Forwarded-For": "198.51.100.1"},
		"usernameRegistry_submitTransaction", signedTx(t, key, 0, common.HexToAddress(aliceAddr), []byte("a")))
	require.Nil(t, res.Error)
	res = callRPCWithHeaders(t, handler, map[string]string{"X-Forwarded-For": "198.51.100.2"},
		"usernameRegistry_submitTransaction", signedTx(t, key, 1, common.HexToAddress(aliceAddr), []byte("b")))
	require.NotNil(t, res.Error)
	require.Equal(t, codeRateLimited, res.Error.Code)
}

func TestNewRateLimiterRejectsBadProxy(t *testing.T) {
	_, err := newRateLimiter(RateLimitConfig{TrustedProxies: []string{"not-an-ip"}})
	require.Error(t, err)
	_, err = NewServer(nil, nil, ServerConfig{RateLimit: RateLimitConfig{TrustedProxies: []string{"10.0.0.0/99"}}}, nil)
	require.Error(t, err)
}
