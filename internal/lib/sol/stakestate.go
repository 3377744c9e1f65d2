package sol

import (
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// StakeStateType is the leading tag of a StakeStateV2 account.
type StakeStateType uint32

const (
	StakeStateUninitialized StakeStateType = iota
	StakeStateInitialized
	StakeStateStake
	StakeStateRewardsPool
)

func (s StakeStateType) String() string {
	switch s {
	case StakeStateUninitialized:
		return "uninitialized"
	case StakeStateInitialized:
		return "initialized"
	case StakeStateStake:
		return "delegated"
	case StakeStateRewardsPool:
		return "rewardsPool"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

const (
	// StakeAccountSize is the data length of every stake program account.
	StakeAccountSize = 200

	// byte offsets used for getProgramAccounts memcmp filters
	stakerOffset     = 4 + 8
	withdrawerOffset = stakerOffset + 32
	voterOffset      = 4 + 120

	// NotDeactivated is the deactivation epoch of a delegation that hasn't been deactivated
	NotDeactivated = math.MaxUint64
)

var ErrNotStakeAccount = errors.New("data is not a stake account")

type StakeLockup struct {
	UnixTimestamp int64
	Epoch         uint64
	Custodian     solana.PublicKey
}

type StakeMeta struct {
	RentExemptReserve uint64
	Staker            solana.PublicKey
	Withdrawer        solana.PublicKey
	Lockup            StakeLockup
}

type StakeDelegation struct {
	Voter              solana.PublicKey
	StakeLamports      uint64
	ActivationEpoch    uint64
	DeactivationEpoch  uint64
	WarmupCooldownRate float64
	CreditsObserved    uint64
}

// StakeState is the decoded content of a stake account. Delegation is only set for StakeStateStake.
type StakeState struct {
	Type       StakeStateType
	Meta       StakeMeta
	Delegation *StakeDelegation
}

func readPubkey(decoder *bin.Decoder) (solana.PublicKey, error) {
	var pk solana.PublicKey
	raw, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return pk, err
	}
	copy(pk[:], raw)
	return pk, nil
}

func (m *StakeMeta) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	if m.RentExemptReserve, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if m.Staker, err = readPubkey(decoder); err != nil {
		return err
	}
	if m.Withdrawer, err = readPubkey(decoder); err != nil {
		return err
	}
	if m.Lockup.UnixTimestamp, err = decoder.ReadInt64(bin.LE); err != nil {
		return err
	}
	if m.Lockup.Epoch, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	m.Lockup.Custodian, err = readPubkey(decoder)
	return err
}

func (d *StakeDelegation) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	if d.Voter, err = readPubkey(decoder); err != nil {
		return err
	}
	if d.StakeLamports, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if d.ActivationEpoch, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if d.DeactivationEpoch, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if d.WarmupCooldownRate, err = decoder.ReadFloat64(bin.LE); err != nil {
		return err
	}
	d.CreditsObserved, err = decoder.ReadUint64(bin.LE)
	return err
}

// DecodeStakeState parses raw stake program account data.
func DecodeStakeState(data []byte) (*StakeState, error) {
	if len(data) < StakeAccountSize {
		return nil, fmt.Errorf("%w: length %d", ErrNotStakeAccount, len(data))
	}
	decoder := bin.NewBinDecoder(data)
	tag, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	state := &StakeState{Type: StakeStateType(tag)}
	switch state.Type {
	case StakeStateUninitialized, StakeStateRewardsPool:
		return state, nil
	case StakeStateInitialized, StakeStateStake:
	default:
		return nil, fmt.Errorf("%w: unknown state tag %d", ErrNotStakeAccount, tag)
	}
	if err = state.Meta.UnmarshalWithDecoder(decoder); err != nil {
		return nil, fmt.Errorf("decoding stake meta: %w", err)
	}
	if state.Type == StakeStateStake {
		state.Delegation = &StakeDelegation{}
		if err = state.Delegation.UnmarshalWithDecoder(decoder); err != nil {
			return nil, fmt.Errorf("decoding stake delegation: %w", err)
		}
	}
	return state, nil
}

// IsActive is true for delegations that haven't started deactivating - the only accounts an unstake can target.
func (s *StakeState) IsActive() bool {
	return s.Type == StakeStateStake && s.Delegation != nil && s.Delegation.DeactivationEpoch == NotDeactivated
}
