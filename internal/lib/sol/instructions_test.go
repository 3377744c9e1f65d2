package sol

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/antihax/optional"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionalString(value string) optional.String {
	return optional.NewString(value)
}

func TestNewStakeSeed(t *testing.T) {
	seed := NewStakeSeed()
	assert.Len(t, seed, maxSeedLen)
	assert.NotContains(t, seed, "-")
	assert.NotEqual(t, seed, NewStakeSeed())
}

func TestBuildStakeTransaction(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	voter := solana.NewWallet().PublicKey()
	params := StakeParams{
		Wallet:      wallet,
		VoteAccount: voter,
		Lamports:    3 * solana.LAMPORTS_PER_SOL,
		Rent:        2_282_880,
		Seed:        "0123456789abcdef0123456789abcdef",
		Blockhash:   solana.Hash{1, 2, 3},
	}
	tx, stakeAccount, err := BuildStakeTransaction(params)
	require.NoError(t, err)

	expected, err := solana.CreateWithSeed(wallet, params.Seed, solana.StakeProgramID)
	require.NoError(t, err)
	assert.Equal(t, expected, stakeAccount)

	assert.Equal(t, uint8(1), tx.Message.Header.NumRequiredSignatures)
	assert.Equal(t, wallet, tx.Message.AccountKeys[0])
	assert.Equal(t, params.Blockhash, tx.Message.RecentBlockhash)
	require.Len(t, tx.Message.Instructions, 3)

	create := tx.Message.Instructions[0]
	program, err := tx.Message.Program(create.ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, solana.SystemProgramID, program)
	require.Len(t, create.Data, 4+32+8+32+8+8+32)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(create.Data[0:]))
	assert.Equal(t, params.Seed, string(create.Data[44:76]))
	assert.Equal(t, params.Lamports+params.Rent, binary.LittleEndian.Uint64(create.Data[76:]))
	assert.Equal(t, uint64(StakeAccountSize), binary.LittleEndian.Uint64(create.Data[84:]))

	initialize := tx.Message.Instructions[1]
	require.Len(t, initialize.Data, 4+32+32+8+8+32)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(initialize.Data[0:]))
	assert.Equal(t, wallet[:], []byte(initialize.Data[4:36]))
	assert.Equal(t, wallet[:], []byte(initialize.Data[36:68]))

	delegate := tx.Message.Instructions[2]
	assert.Equal(t, []byte{2, 0, 0, 0}, []byte(delegate.Data))
	require.Len(t, delegate.Accounts, 6)
	assert.Equal(t, voter, tx.Message.AccountKeys[delegate.Accounts[1]])
	assert.Equal(t, StakeConfigID, tx.Message.AccountKeys[delegate.Accounts[4]])
}

func TestBuildStakeTransactionRejects(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	_, _, err := BuildStakeTransaction(StakeParams{Wallet: wallet, Seed: NewStakeSeed()})
	assert.Error(t, err)

	_, _, err = BuildStakeTransaction(StakeParams{Wallet: wallet, Lamports: 1, Seed: NewStakeSeed() + "x"})
	assert.Error(t, err)
}

func TestBuildUnstakeTransaction(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	stakeAccount := solana.NewWallet().PublicKey()

	tx, err := BuildUnstakeTransaction(wallet, stakeAccount, solana.Hash{9})
	require.NoError(t, err)
	require.Len(t, tx.Message.Instructions, 1)
	deactivate := tx.Message.Instructions[0]
	assert.Equal(t, []byte{5, 0, 0, 0}, []byte(deactivate.Data))
	require.Len(t, deactivate.Accounts, 3)
	assert.Equal(t, stakeAccount, tx.Message.AccountKeys[deactivate.Accounts[0]])
	assert.Equal(t, wallet, tx.Message.AccountKeys[deactivate.Accounts[2]])
}

func TestEncodeUnsigned(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	tx, err := BuildUnstakeTransaction(wallet, solana.NewWallet().PublicKey(), solana.Hash{9})
	require.NoError(t, err)

	encoded, err := EncodeUnsigned(tx)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	decoded, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	require.Len(t, decoded.Signatures, 1)
	assert.True(t, decoded.Signatures[0].IsZero())
	assert.Equal(t, wallet, decoded.Message.AccountKeys[0])
	// the source transaction is left untouched
	assert.Empty(t, tx.Signatures)
}
