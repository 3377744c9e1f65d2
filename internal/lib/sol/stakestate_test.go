package sol

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stakeAccountData(tag uint32, staker, voter solana.PublicKey, stake, deactivation uint64) []byte {
	data := make([]byte, StakeAccountSize)
	binary.LittleEndian.PutUint32(data[0:], tag)
	binary.LittleEndian.PutUint64(data[4:], 2_282_880)
	copy(data[stakerOffset:], staker[:])
	copy(data[withdrawerOffset:], staker[:])
	if tag == uint32(StakeStateStake) {
		copy(data[voterOffset:], voter[:])
		binary.LittleEndian.PutUint64(data[156:], stake)
		binary.LittleEndian.PutUint64(data[164:], 500)
		binary.LittleEndian.PutUint64(data[172:], deactivation)
		binary.LittleEndian.PutUint64(data[180:], math.Float64bits(0.09))
		binary.LittleEndian.PutUint64(data[188:], 1234)
	}
	return data
}

func TestDecodeStakeStateDelegated(t *testing.T) {
	staker := solana.NewWallet().PublicKey()
	voter := solana.NewWallet().PublicKey()

	state, err := DecodeStakeState(stakeAccountData(2, staker, voter, 5*solana.LAMPORTS_PER_SOL, NotDeactivated))
	require.NoError(t, err)
	assert.Equal(t, StakeStateStake, state.Type)
	assert.Equal(t, uint64(2_282_880), state.Meta.RentExemptReserve)
	assert.Equal(t, staker, state.Meta.Staker)
	assert.Equal(t, staker, state.Meta.Withdrawer)
	require.NotNil(t, state.Delegation)
	assert.Equal(t, voter, state.Delegation.Voter)
	assert.Equal(t, 5*solana.LAMPORTS_PER_SOL, state.Delegation.StakeLamports)
	assert.Equal(t, uint64(500), state.Delegation.ActivationEpoch)
	assert.InDelta(t, 0.09, state.Delegation.WarmupCooldownRate, 1e-9)
	assert.Equal(t, uint64(1234), state.Delegation.CreditsObserved)
	assert.True(t, state.IsActive())
}

func TestDecodeStakeStateDeactivating(t *testing.T) {
	staker := solana.NewWallet().PublicKey()
	state, err := DecodeStakeState(stakeAccountData(2, staker, solana.NewWallet().PublicKey(), solana.LAMPORTS_PER_SOL, 612))
	require.NoError(t, err)
	assert.False(t, state.IsActive())
	assert.Equal(t, uint64(612), state.Delegation.DeactivationEpoch)
}

func TestDecodeStakeStateInitialized(t *testing.T) {
	staker := solana.NewWallet().PublicKey()
	state, err := DecodeStakeState(stakeAccountData(1, staker, solana.PublicKey{}, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, StakeStateInitialized, state.Type)
	assert.Nil(t, state.Delegation)
	assert.False(t, state.IsActive())
	assert.Equal(t, "initialized", state.Type.String())
}

func TestDecodeStakeStateRejectsGarbage(t *testing.T) {
	_, err := DecodeStakeState(make([]byte, 10))
	assert.ErrorIs(t, err, ErrNotStakeAccount)

	_, err = DecodeStakeState(stakeAccountData(9, solana.PublicKey{}, solana.PublicKey{}, 0, 0))
	assert.ErrorIs(t, err, ErrNotStakeAccount)
}

func TestStakeAccountLamports(t *testing.T) {
	staker := solana.NewWallet().PublicKey()
	delegated, err := DecodeStakeState(stakeAccountData(2, staker, solana.NewWallet().PublicKey(), 3*solana.LAMPORTS_PER_SOL, NotDeactivated))
	require.NoError(t, err)
	initialized, err := DecodeStakeState(stakeAccountData(1, staker, solana.PublicKey{}, 0, 0))
	require.NoError(t, err)

	active := StakeAccount{Lamports: 3*solana.LAMPORTS_PER_SOL + 2_282_880, State: delegated}
	assert.Equal(t, 3*solana.LAMPORTS_PER_SOL, active.DelegatedLamports())
	assert.True(t, active.IsActive())

	idle := StakeAccount{Lamports: 2_282_880, State: initialized}
	assert.Equal(t, uint64(2_282_880), idle.DelegatedLamports())
	assert.False(t, idle.IsActive())
}

func TestStakeAccountFilters(t *testing.T) {
	staker := solana.NewWallet().PublicKey()
	voter := solana.NewWallet().PublicKey()

	filters, err := stakeAccountFilters(staker, nil)
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.Equal(t, uint64(StakeAccountSize), filters[0].DataSize)
	assert.Equal(t, uint64(12), filters[1].Memcmp.Offset)
	assert.Equal(t, solana.Base58(staker[:]), filters[1].Memcmp.Bytes)

	filters, err = stakeAccountFilters(staker, &StakeAccountsOpts{VoteAccount: optionalString(voter.String())})
	require.NoError(t, err)
	require.Len(t, filters, 3)
	assert.Equal(t, uint64(124), filters[2].Memcmp.Offset)

	_, err = stakeAccountFilters(staker, &StakeAccountsOpts{Withdrawer: optionalString("not-a-key")})
	assert.Error(t, err)
}
