package eventlog

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

var (
	contract = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyer    = common.HexToAddress("0x0000000000000000000000000000000000000011")
)

func TestTopicMatchesSignatureHash(t *testing.T) {
	topic, err := Topic("TokensPurchased")
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash([]byte("TokensPurchased(address,uint256,uint256,uint256)")), topic)

	_, err = Topic("Nope")
	require.Error(t, err)
}

func TestEncodeDecodePurchase(t *testing.T) {
	ev := domain.TokensPurchased{
		Buyer:     buyer,
		Payment:   big.NewInt(1_000),
		TokensOut: big.NewInt(2_000),
		NewPrice:  big.NewInt(3),
	}

	log, err := Encode(contract, ev)
	require.NoError(t, err)
	assert.Equal(t, contract, log.Address)
	require.Len(t, log.Topics, 2)
	assert.Equal(t, buyer, common.BytesToAddress(log.Topics[1].Bytes()))
	assert.Len(t, log.Data, 3*32)

	name, fields, err := Decode(log)
	require.NoError(t, err)
	assert.Equal(t, "TokensPurchased", name)
	assert.Equal(t, buyer, fields["buyer"])
	assert.Equal(t, "1000", fields["payment"].(*big.Int).String())
	assert.Equal(t, "2000", fields["tokensOut"].(*big.Int).String())
}

func TestEncodeTokenCreatedIndexesAllAddresses(t *testing.T) {
	ev := domain.TokenCreated{
		Token:   contract,
		Vault:   common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		Creator: common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Name:    "Fighter",
		Symbol:  "FGT",
	}

	log, err := Encode(common.HexToAddress("0xfa"), ev)
	require.NoError(t, err)
	require.Len(t, log.Topics, 4)

	_, fields, err := Decode(log)
	require.NoError(t, err)
	assert.Equal(t, ev.Creator, fields["creator"])
	assert.Equal(t, "FGT", fields["symbol"])
}

func TestEncodeVoteCast(t *testing.T) {
	ev := domain.VoteCast{Voter: buyer, PollID: 4, Option: 1, Weight: big.NewInt(500)}

	log, err := Encode(contract, ev)
	require.NoError(t, err)

	_, fields, err := Decode(log)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), fields["pollId"])
	assert.Equal(t, uint64(1), fields["option"])
}

func TestEncodeVoteClosed(t *testing.T) {
	log, err := Encode(contract, domain.VoteClosed{PollID: 3})
	require.NoError(t, err)
	require.Len(t, log.Topics, 1)

	name, fields, err := Decode(log)
	require.NoError(t, err)
	assert.Equal(t, "VoteClosed", name)
	assert.Equal(t, uint64(3), fields["pollId"])
}

func TestEncodeEventWithoutData(t *testing.T) {
	log, err := Encode(contract, domain.CurvePaused{Operator: buyer})
	require.NoError(t, err)
	assert.Empty(t, log.Data)

	name, _, err := Decode(log)
	require.NoError(t, err)
	assert.Equal(t, "CurvePaused", name)
}
