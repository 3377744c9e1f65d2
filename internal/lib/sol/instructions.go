package sol

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

var StakeConfigID = solana.MustPublicKeyFromBase58("StakeConfig11111111111111111111111111111111")

// instruction discriminants
const (
	systemCreateAccountWithSeed uint32 = 3

	stakeInitialize uint32 = 0
	stakeDelegate   uint32 = 2
	stakeDeactivate uint32 = 5
)

// maxSeedLen is the longest seed CreateWithSeed accepts.
const maxSeedLen = 32

// NewStakeSeed returns a fresh seed for deriving a new stake account from the wallet.
func NewStakeSeed() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// StakeParams describes a new delegation funded from Wallet.
type StakeParams struct {
	Wallet      solana.PublicKey
	VoteAccount solana.PublicKey
	Lamports    uint64 // delegated amount, rent is added on top
	Rent        uint64 // rent exemption for a StakeAccountSize account
	Seed        string
	Blockhash   solana.Hash
}

// BuildStakeTransaction creates a seed-derived stake account, initializes it with the wallet as both
// authorities, and delegates it to the vote account. The wallet is the fee payer and only signer.
func BuildStakeTransaction(params StakeParams) (*solana.Transaction, solana.PublicKey, error) {
	if params.Lamports == 0 {
		return nil, solana.PublicKey{}, errors.New("stake amount must be positive")
	}
	if params.Seed == "" || len(params.Seed) > maxSeedLen {
		return nil, solana.PublicKey{}, fmt.Errorf("invalid stake account seed %q", params.Seed)
	}
	stakeAccount, err := solana.CreateWithSeed(params.Wallet, params.Seed, solana.StakeProgramID)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("deriving stake account: %w", err)
	}
	create, err := createAccountWithSeedInstruction(params.Wallet, stakeAccount, params.Seed, params.Lamports+params.Rent)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	initialize, err := initializeInstruction(stakeAccount, params.Wallet, params.Wallet)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	delegate, err := delegateInstruction(stakeAccount, params.VoteAccount, params.Wallet)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{create, initialize, delegate},
		params.Blockhash,
		solana.TransactionPayer(params.Wallet),
	)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("building stake transaction: %w", err)
	}
	return tx, stakeAccount, nil
}

// BuildUnstakeTransaction deactivates the whole of stakeAccount. The lamports become withdrawable once the
// cooldown epoch passes.
func BuildUnstakeTransaction(wallet, stakeAccount solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	deactivate, err := deactivateInstruction(stakeAccount, wallet)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction([]solana.Instruction{deactivate}, blockhash, solana.TransactionPayer(wallet))
	if err != nil {
		return nil, fmt.Errorf("building unstake transaction: %w", err)
	}
	return tx, nil
}

// EncodeUnsigned serializes tx for an external wallet to sign, with zeroed signature slots.
func EncodeUnsigned(tx *solana.Transaction) (string, error) {
	unsigned := *tx
	unsigned.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := unsigned.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encoding transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func encodeInstruction(fn func(encoder *bin.Encoder) error) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := fn(bin.NewBinEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func createAccountWithSeedInstruction(base, newAccount solana.PublicKey, seed string, lamports uint64) (solana.Instruction, error) {
	data, err := encodeInstruction(func(encoder *bin.Encoder) error {
		if err := encoder.WriteUint32(systemCreateAccountWithSeed, bin.LE); err != nil {
			return err
		}
		if err := encoder.WriteBytes(base[:], false); err != nil {
			return err
		}
		if err := encoder.WriteUint64(uint64(len(seed)), bin.LE); err != nil {
			return err
		}
		if err := encoder.WriteBytes([]byte(seed), false); err != nil {
			return err
		}
		if err := encoder.WriteUint64(lamports, bin.LE); err != nil {
			return err
		}
		if err := encoder.WriteUint64(StakeAccountSize, bin.LE); err != nil {
			return err
		}
		return encoder.WriteBytes(solana.StakeProgramID[:], false)
	})
	if err != nil {
		return nil, fmt.Errorf("encoding create account: %w", err)
	}
	return solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(base, true, true),
		solana.NewAccountMeta(newAccount, true, false),
	}, data), nil
}

func initializeInstruction(stakeAccount, staker, withdrawer solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstruction(func(encoder *bin.Encoder) error {
		if err := encoder.WriteUint32(stakeInitialize, bin.LE); err != nil {
			return err
		}
		if err := encoder.WriteBytes(staker[:], false); err != nil {
			return err
		}
		if err := encoder.WriteBytes(withdrawer[:], false); err != nil {
			return err
		}
		// no lockup
		if err := encoder.WriteInt64(0, bin.LE); err != nil {
			return err
		}
		if err := encoder.WriteUint64(0, bin.LE); err != nil {
			return err
		}
		var custodian solana.PublicKey
		return encoder.WriteBytes(custodian[:], false)
	})
	if err != nil {
		return nil, fmt.Errorf("encoding stake initialize: %w", err)
	}
	return solana.NewInstruction(solana.StakeProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stakeAccount, true, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}, data), nil
}

func delegateInstruction(stakeAccount, voteAccount, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstruction(func(encoder *bin.Encoder) error {
		return encoder.WriteUint32(stakeDelegate, bin.LE)
	})
	if err != nil {
		return nil, fmt.Errorf("encoding stake delegate: %w", err)
	}
	return solana.NewInstruction(solana.StakeProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stakeAccount, true, false),
		solana.NewAccountMeta(voteAccount, false, false),
		solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
		solana.NewAccountMeta(solana.SysVarStakeHistoryPubkey, false, false),
		solana.NewAccountMeta(StakeConfigID, false, false),
		solana.NewAccountMeta(authority, false, true),
	}, data), nil
}

func deactivateInstruction(stakeAccount, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstruction(func(encoder *bin.Encoder) error {
		return encoder.WriteUint32(stakeDeactivate, bin.LE)
	})
	if err != nil {
		return nil, fmt.Errorf("encoding stake deactivate: %w", err)
	}
	return solana.NewInstruction(solana.StakeProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stakeAccount, true, false),
		solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
		solana.NewAccountMeta(authority, false, true),
	}, data), nil
}
