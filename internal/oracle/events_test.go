package oracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/vault-yield/internal/model"
)

func eventData(assets, shares int64) []byte {
	data := make([]byte, 0, 64)
	data = append(data, common.LeftPadBytes(big.NewInt(assets).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(shares).Bytes(), 32)...)
	return data
}

func TestUserInteractions_DecodesAndOrders(t *testing.T) {
	chain := &fakeChain{
		headers: map[uint64]uint64{
			100: 1_700_000_000,
			250: 1_700_086_400,
		},
		logs: map[common.Hash][]types.Log{
			depositTopic: {{
				BlockNumber: 250,
				Data:        eventData(500, 490),
				TxHash:      common.HexToHash("0xbb"),
			}},
			withdrawTopic: {{
				BlockNumber: 100,
				Data:        eventData(200, 195),
				TxHash:      common.HexToHash("0xaa"),
			}},
		},
	}

	scanner := NewEventScanner(chain, common.HexToAddress("0x1"))
	interactions, err := scanner.UserInteractions(context.Background(), common.HexToAddress("0x2"), 0, 1000)
	require.NoError(t, err)
	require.Len(t, interactions, 2)

	// Ordered by block despite deposits being fetched first.
	first := interactions[0]
	assert.Equal(t, uint64(100), first.Block)
	assert.Equal(t, model.Withdraw, first.Kind)
	assert.Equal(t, int64(200), first.AssetsDelta.Int64())
	assert.Equal(t, int64(195), first.SharesDelta.Int64())
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), first.Time)

	second := interactions[1]
	assert.Equal(t, uint64(250), second.Block)
	assert.Equal(t, model.Deposit, second.Kind)
	assert.Equal(t, int64(490), second.SharesDelta.Int64())
}

func TestUserInteractions_NoEvents(t *testing.T) {
	chain := &fakeChain{logs: map[common.Hash][]types.Log{}}
	scanner := NewEventScanner(chain, common.HexToAddress("0x1"))

	interactions, err := scanner.UserInteractions(context.Background(), common.HexToAddress("0x2"), 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, interactions)
}

func TestDecodeInteraction_ShortData(t *testing.T) {
	_, err := decodeInteraction(types.Log{Data: []byte{0x01}}, model.Deposit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short data")
}
