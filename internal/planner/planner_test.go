package planner

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var (
	walletA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	walletB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	walletC = common.HexToAddress("0x000000000000000000000000000000000000000c")
)

func capsOf(caps map[common.Address]int64) CapFunc {
	return func(a common.Address) *big.Int {
		return big.NewInt(caps[a])
	}
}

func amounts(t *testing.T, total int64, wallets []common.Address, caps map[common.Address]int64) map[common.Address]int64 {
	t.Helper()
	plan, err := Plan(big.NewInt(total), wallets, capsOf(caps))
	require.NoError(t, err)
	out := make(map[common.Address]int64, len(plan))
	for _, a := range plan {
		out[a.Wallet] = a.Amount.Int64()
	}
	return out
}

func TestPlanRedistributesShortfall(t *testing.T) {
	got := amounts(t, 6, []common.Address{walletA, walletB, walletC},
		map[common.Address]int64{walletA: 5, walletB: 2, walletC: 0})

	want := map[common.Address]int64{walletA: 4, walletB: 2, walletC: 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanInsufficientCapacity(t *testing.T) {
	plan, err := Plan(big.NewInt(10), []common.Address{walletA, walletB},
		capsOf(map[common.Address]int64{walletA: 1, walletB: 1}))

	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Nil(t, plan)
}

func TestPlanRemainderGoesToFirstWalletWithRoom(t *testing.T) {
	got := amounts(t, 10, []common.Address{walletA, walletB, walletC},
		map[common.Address]int64{walletA: 100, walletB: 100, walletC: 100})

	require.Equal(t, int64(4), got[walletA])
	require.Equal(t, int64(3), got[walletB])
	require.Equal(t, int64(3), got[walletC])
}

func TestPlanRejectsBadInput(t *testing.T) {
	_, err := Plan(big.NewInt(0), []common.Address{walletA}, capsOf(nil))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Plan(big.NewInt(5), nil, capsOf(nil))
	require.ErrorIs(t, err, ErrNoWallets)
}

func TestPlanIgnoresDuplicates(t *testing.T) {
	_, err := Plan(big.NewInt(4), []common.Address{walletA, walletA},
		capsOf(map[common.Address]int64{walletA: 2}))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestPlanPropertyRespectsCapsAndTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	wallets := []common.Address{walletA, walletB, walletC}

	for i := 0; i < 500; i++ {
		caps := map[common.Address]int64{
			walletA: rng.Int63n(50),
			walletB: rng.Int63n(50),
			walletC: rng.Int63n(50),
		}
		capacity := caps[walletA] + caps[walletB] + caps[walletC]
		total := rng.Int63n(160) + 1

		plan, err := Plan(big.NewInt(total), wallets, capsOf(caps))
		if total > capacity {
			require.ErrorIs(t, err, ErrInsufficientBalance)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, total, Total(plan).Int64())
		for _, a := range plan {
			require.GreaterOrEqual(t, a.Amount.Sign(), 0)
			require.LessOrEqual(t, a.Amount.Int64(), caps[a.Wallet])
		}
	}
}

func TestNonZero(t *testing.T) {
	plan, err := Plan(big.NewInt(6), []common.Address{walletA, walletB, walletC},
		capsOf(map[common.Address]int64{walletA: 5, walletB: 2, walletC: 0}))
	require.NoError(t, err)
	require.Len(t, NonZero(plan), 2)
}
