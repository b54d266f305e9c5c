package dispatch

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var devAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type fakeBackend struct {
	mu       sync.Mutex
	sent     []*types.Transaction
	estimate ethereum.CallMsg
	sendErr  error
}

func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(100)}, nil
}

func (b *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, errors.New("nonce must come from the operation")
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(150), nil
}

func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.estimate = msg
	return 90_000, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func TestEthSubmitterSignsReservedNonce(t *testing.T) {
	backend := &fakeBackend{}
	chainID := big.NewInt(10143)
	s := NewEthSubmitter(backend, chainID)

	call := Call{To: router, Data: []byte{0xde, 0xad}, Value: big.NewInt(5)}
	receipt, err := s.Submit(context.Background(), Operation{
		From:       devAddr,
		Call:       call,
		Nonce:      7,
		SigningKey: devKey,
		GasTipCap:  big.NewInt(3),
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, receipt.TxHash, tx.Hash())
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, router, *tx.To())
	require.Equal(t, call.Data, tx.Data())
	require.Equal(t, int64(5), tx.Value().Int64())
	require.Equal(t, int64(3), tx.GasTipCap().Int64())
	require.Equal(t, uint64(90_000), tx.Gas())
	require.Equal(t, devAddr, backend.estimate.From)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	require.NoError(t, err)
	require.Equal(t, devAddr, sender)
}

func TestEthSubmitterRejectsMissingOrForeignKey(t *testing.T) {
	backend := &fakeBackend{}
	s := NewEthSubmitter(backend, big.NewInt(1))

	_, err := s.Submit(context.Background(), Operation{From: devAddr, Call: Call{To: router}})
	require.ErrorIs(t, err, ErrNoSigningKey)

	_, err = s.Submit(context.Background(), Operation{From: walletA, Call: Call{To: router}, SigningKey: devKey})
	require.ErrorContains(t, err, "signing key belongs to")
	require.Empty(t, backend.sent)
}

func TestEthSubmitterWrapsSendError(t *testing.T) {
	backend := &fakeBackend{sendErr: errors.New("nonce too low")}
	s := NewEthSubmitter(backend, big.NewInt(1))

	_, err := s.Submit(context.Background(), Operation{From: devAddr, Call: Call{To: router, Value: big.NewInt(1)}, SigningKey: devKey})
	require.ErrorContains(t, err, "nonce too low")
}
