package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/alanyoungcy/pumpfight/internal/cache/memory"
	"github.com/alanyoungcy/pumpfight/internal/crypto"
)

// echoCaller writes the caller address and the body it received.
var echoCaller = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	addr, _ := CallerFrom(r.Context())
	body, _ := io.ReadAll(r.Body)
	w.Write([]byte(addr.Hex() + "|" + string(body)))
})

func TestCallerWithoutSignature(t *testing.T) {
	h := Caller(false)(echoCaller)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000d4")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(HeaderCallerAddress, addr.Hex())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, addr.Hex()+"|{}", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallerSignature(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.NewSigner(key)
	body := `{"payment":"1.5"}`
	sig, err := signer.SignMessage([]byte(body))
	require.NoError(t, err)

	h := Caller(true)(echoCaller)

	tests := []struct {
		name   string
		addr   string
		sig    string
		body   string
		status int
	}{
		{"valid", signer.Address().Hex(), hexutil.Encode(sig), body, http.StatusOK},
		{"tampered body", signer.Address().Hex(), hexutil.Encode(sig), `{"payment":"9"}`, http.StatusUnauthorized},
		{"other address", "0x00000000000000000000000000000000000000d4", hexutil.Encode(sig), body, http.StatusUnauthorized},
		{"missing signature", signer.Address().Hex(), "", body, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set(HeaderCallerAddress, tt.addr)
			if tt.sig != "" {
				req.Header.Set(HeaderCallerSignature, tt.sig)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, signer.Address().Hex()+"|"+body, rec.Body.String())
			}
		})
	}
}

func TestOperatorAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	open := OperatorAuth("")(ok)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	guarded := OperatorAuth("s3cret")(ok)
	for header, value := range map[string]string{"Authorization": "Bearer s3cret", "X-API-Key": "s3cret"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(header, value)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code, header)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(memcache.NewRateLimiter(), 2, time.Minute)(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/tokens", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), HeaderCallerSignature)
}
