package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jwksServer struct {
	*httptest.Server
	discoveries atomic.Int32
	fetches     atomic.Int32
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "kid"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	body, err := json.Marshal(set)
	require.NoError(t, err)

	s := &jwksServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		s.discoveries.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   s.URL,
			"jwks_uri": s.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestCachingProvider_KeySet(t *testing.T) {
	t.Run("it discovers the JWKS URI and caches the key set", func(t *testing.T) {
		srv := newJWKSServer(t)
		issuer, err := url.Parse(srv.URL)
		require.NoError(t, err)

		p, err := NewCachingProvider(WithIssuerURL(issuer), WithCustomClient(srv.Client()))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			set, err := p.KeySet(context.Background())
			require.NoError(t, err)
			key, ok := set.Key(0)
			require.True(t, ok)
			assert.Equal(t, "kid", key.KeyID())
		}

		assert.EqualValues(t, 1, srv.discoveries.Load())
		assert.EqualValues(t, 1, srv.fetches.Load())
	})

	t.Run("it fetches from a configured JWKS URI without discovery", func(t *testing.T) {
		srv := newJWKSServer(t)

		p, err := NewCachingProvider(WithJWKSURI(srv.URL + "/keys"))
		require.NoError(t, err)

		_, err = p.KeySet(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 0, srv.discoveries.Load())
		assert.EqualValues(t, 1, srv.fetches.Load())
	})

	t.Run("it refetches after Invalidate", func(t *testing.T) {
		srv := newJWKSServer(t)

		p, err := NewCachingProvider(WithJWKSURI(srv.URL + "/keys"))
		require.NoError(t, err)

		_, err = p.KeySet(context.Background())
		require.NoError(t, err)
		p.Invalidate()
		_, err = p.KeySet(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 2, srv.fetches.Load())
	})

	t.Run("it shares one fetch between concurrent callers", func(t *testing.T) {
		srv := newJWKSServer(t)

		p, err := NewCachingProvider(WithJWKSURI(srv.URL + "/keys"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := p.KeySet(context.Background())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, srv.fetches.Load(), int32(20))
		assert.GreaterOrEqual(t, srv.fetches.Load(), int32(1))
	})

	t.Run("it reports fetch failures and does not cache them", func(t *testing.T) {
		srv := newJWKSServer(t)

		p, err := NewCachingProvider(WithJWKSURI(srv.URL + "/broken"))
		require.NoError(t, err)

		_, err = p.KeySet(context.Background())
		assert.ErrorContains(t, err, "returned status 502")
		_, err = p.KeySet(context.Background())
		assert.Error(t, err)
	})
}

func TestNewCachingProvider(t *testing.T) {
	_, err := NewCachingProvider()
	assert.ErrorContains(t, err, "issuer URL or JWKS URI is required")

	_, err = NewCachingProvider(WithJWKSURI("/relative"))
	assert.ErrorContains(t, err, "must be an absolute URL")

	_, err = NewCachingProvider(WithJWKSURI("https://auth.example/keys"), WithCacheTTL(0))
	assert.ErrorContains(t, err, "cache TTL must be positive")
}

func TestParseCacheControl(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{header: "", want: 0},
		{header: "max-age=3600", want: time.Hour},
		{header: "public, max-age=60, must-revalidate", want: time.Minute},
		{header: "max-age=-1", want: 0},
		{header: "max-age=abc", want: 0},
		{header: "max-age=999999999", want: 0},
		{header: "no-store", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCacheControl(tt.header))
		})
	}
}
