package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	m := New()
	m.Commands.WithLabelValues("buy", "ok").Inc()
	m.Commands.WithLabelValues("buy", "ok").Inc()
	m.Tokens.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("buy", "ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pumpfight_commands_total{kind="buy",result="ok"} 2`)
	assert.Contains(t, rec.Body.String(), "pumpfight_tokens 3")
}
