package fixed

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.0005", "500000000000000"},
		{"1", "1000000000000000000"},
		{"50000", "50000000000000000000000"},
		{"0.000000000000000001", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseRejectsExcessPrecision(t *testing.T) {
	_, err := Parse("0.0000000000000000001")
	require.Error(t, err)

	_, err = Parse("abc")
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.0005", Format(MustParse("0.0005")))
	assert.Equal(t, "600", Format(Units(600)))
	assert.Equal(t, "0", Format(nil))
}

func TestMulDivRounding(t *testing.T) {
	a, b, c := big.NewInt(10), big.NewInt(10), big.NewInt(3)
	assert.Equal(t, int64(33), MulDiv(a, b, c).Int64())
	assert.Equal(t, int64(34), MulDivUp(a, b, c).Int64())
	assert.Equal(t, int64(4), MulDivUp(big.NewInt(2), big.NewInt(6), c).Int64())
}

func TestBps(t *testing.T) {
	assert.Equal(t, Units(5).String(), Bps(Units(100), 500).String())
	assert.Equal(t, int64(0), Bps(big.NewInt(1), 1).Int64())
}
