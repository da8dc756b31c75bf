package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/vault-yield/internal/model"
)

// ERC-4626 event signatures. The owner is the second indexed argument of
// Deposit and the third of Withdraw.
var (
	depositTopic  = crypto.Keccak256Hash([]byte("Deposit(address,address,uint256,uint256)"))
	withdrawTopic = crypto.Keccak256Hash([]byte("Withdraw(address,address,address,uint256,uint256)"))
)

// EventScanner builds a user's interaction ledger from the vault's
// Deposit/Withdraw logs. Fetched once per analysis run.
type EventScanner struct {
	client ChainReader
	vault  common.Address
	log    *logrus.Entry
}

// NewEventScanner creates a scanner for one vault.
func NewEventScanner(client ChainReader, vault common.Address) *EventScanner {
	return &EventScanner{
		client: client,
		vault:  vault,
		log:    logrus.WithField("component", "event-scanner"),
	}
}

// UserInteractions fetches all deposits and withdrawals of owner between
// fromBlock and toBlock inclusive, with block timestamps resolved.
func (s *EventScanner) UserInteractions(ctx context.Context, owner common.Address, fromBlock, toBlock uint64) ([]model.Interaction, error) {
	ownerTopic := common.BytesToHash(common.LeftPadBytes(owner.Bytes(), 32))

	deposits, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{s.vault},
		Topics:    [][]common.Hash{{depositTopic}, nil, {ownerTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("scan deposits: %w", err)
	}

	withdrawals, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{s.vault},
		Topics:    [][]common.Hash{{withdrawTopic}, nil, nil, {ownerTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("scan withdrawals: %w", err)
	}

	interactions := make([]model.Interaction, 0, len(deposits)+len(withdrawals))
	for _, lg := range deposits {
		in, err := decodeInteraction(lg, model.Deposit)
		if err != nil {
			return nil, err
		}
		interactions = append(interactions, in)
	}
	for _, lg := range withdrawals {
		in, err := decodeInteraction(lg, model.Withdraw)
		if err != nil {
			return nil, err
		}
		interactions = append(interactions, in)
	}

	if err := s.resolveTimes(ctx, interactions); err != nil {
		return nil, err
	}

	sort.SliceStable(interactions, func(i, j int) bool {
		return interactions[i].Block < interactions[j].Block
	})

	s.log.WithFields(logrus.Fields{
		"owner":       owner.Hex(),
		"deposits":    len(deposits),
		"withdrawals": len(withdrawals),
	}).Info("scanned vault interactions")
	return interactions, nil
}

// decodeInteraction reads the two non-indexed uint256 words (assets, shares)
// from a Deposit/Withdraw log.
func decodeInteraction(lg types.Log, kind model.InteractionKind) (model.Interaction, error) {
	if len(lg.Data) < 64 {
		return model.Interaction{}, fmt.Errorf("log %s: short data (%d bytes)", lg.TxHash.Hex(), len(lg.Data))
	}
	return model.Interaction{
		Block:       lg.BlockNumber,
		Kind:        kind,
		AssetsDelta: new(big.Int).SetBytes(lg.Data[:32]),
		SharesDelta: new(big.Int).SetBytes(lg.Data[32:64]),
		TxHash:      lg.TxHash.Hex(),
	}, nil
}

// resolveTimes fills interaction timestamps, one header fetch per unique block.
func (s *EventScanner) resolveTimes(ctx context.Context, interactions []model.Interaction) error {
	times := make(map[uint64]time.Time)
	for i := range interactions {
		block := interactions[i].Block
		t, ok := times[block]
		if !ok {
			header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
			if err != nil {
				return fmt.Errorf("header %d: %w", block, err)
			}
			t = time.Unix(int64(header.Time), 0).UTC()
			times[block] = t
		}
		interactions[i].Time = t
	}
	return nil
}
