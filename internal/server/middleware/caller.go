package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/pumpfight/internal/crypto"
)

const (
	HeaderCallerAddress   = "X-Caller-Address"
	HeaderCallerSignature = "X-Caller-Signature"

	// maxBodyBytes caps write request bodies.
	maxBodyBytes = 64 << 10
)

type callerKey struct{}

// CallerFrom returns the authenticated caller stored by Caller.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// WithCaller returns ctx carrying addr as the caller.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Caller identifies the account behind a write request from the
// X-Caller-Address header. With requireSignature set, X-Caller-Signature must
// be an EIP-191 personal signature by that account over the raw body.
func Caller(requireSignature bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderCallerAddress))
			if !common.IsHexAddress(raw) {
				writeUnauthorized(w, "missing or invalid "+HeaderCallerAddress)
				return
			}
			addr := common.HexToAddress(raw)

			if requireSignature {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
				if err != nil {
					writeUnauthorized(w, "unreadable body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				sig, err := hexutil.Decode(strings.TrimSpace(r.Header.Get(HeaderCallerSignature)))
				if err != nil {
					writeUnauthorized(w, "missing or invalid "+HeaderCallerSignature)
					return
				}
				if !crypto.VerifySigner(body, sig, addr) {
					writeUnauthorized(w, "signature does not match caller")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}
