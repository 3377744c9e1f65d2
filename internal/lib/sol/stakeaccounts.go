package sol

import (
	"context"
	"fmt"
	"sort"

	"github.com/antihax/optional"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// StakeAccount is a stake program account whose staker authority is the queried wallet.
type StakeAccount struct {
	Pubkey   solana.PublicKey
	Lamports uint64 // total lamports held by the account, including its rent reserve
	State    *StakeState
}

// DelegatedLamports is the delegated stake for delegation accounts, and the account balance otherwise.
func (s StakeAccount) DelegatedLamports() uint64 {
	if s.State != nil && s.State.Delegation != nil {
		return s.State.Delegation.StakeLamports
	}
	return s.Lamports
}

func (s StakeAccount) IsActive() bool {
	return s.State != nil && s.State.IsActive()
}

// StakeAccountsOpts narrows a stake account query. Unset fields aren't filtered on.
type StakeAccountsOpts struct {
	VoteAccount optional.String
	Withdrawer  optional.String
}

// StakeAccounts lists stake accounts whose staker authority is staker. Results are sorted by pubkey so selection
// is deterministic across calls.
func (c *Client) StakeAccounts(ctx context.Context, staker solana.PublicKey, opts *StakeAccountsOpts) ([]StakeAccount, error) {
	filters, err := stakeAccountFilters(staker, opts)
	if err != nil {
		return nil, err
	}
	var result rpc.GetProgramAccountsResult
	err = c.retryRead(ctx, "getProgramAccounts", func() error {
		result, err = c.rpc.GetProgramAccountsWithOpts(ctx, solana.StakeProgramID, &rpc.GetProgramAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
			Filters:    filters,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching stake accounts of %s: %w", staker, err)
	}
	accounts := make([]StakeAccount, 0, len(result))
	for _, keyed := range result {
		if keyed == nil || keyed.Account == nil || keyed.Account.Data == nil {
			continue
		}
		state, err := DecodeStakeState(keyed.Account.Data.GetBinary())
		if err != nil {
			c.logger.Warn("skipping undecodable stake account", "pubkey", keyed.Pubkey.String(), "error", err)
			continue
		}
		accounts = append(accounts, StakeAccount{
			Pubkey:   keyed.Pubkey,
			Lamports: keyed.Account.Lamports,
			State:    state,
		})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Pubkey.String() < accounts[j].Pubkey.String()
	})
	return accounts, nil
}

func stakeAccountFilters(staker solana.PublicKey, opts *StakeAccountsOpts) ([]rpc.RPCFilter, error) {
	filters := []rpc.RPCFilter{
		{DataSize: StakeAccountSize},
		memcmp(stakerOffset, staker),
	}
	if opts == nil {
		return filters, nil
	}
	if opts.Withdrawer.IsSet() {
		withdrawer, err := solana.PublicKeyFromBase58(opts.Withdrawer.Value())
		if err != nil {
			return nil, fmt.Errorf("invalid withdrawer %q: %w", opts.Withdrawer.Value(), err)
		}
		filters = append(filters, memcmp(withdrawerOffset, withdrawer))
	}
	if opts.VoteAccount.IsSet() {
		voter, err := solana.PublicKeyFromBase58(opts.VoteAccount.Value())
		if err != nil {
			return nil, fmt.Errorf("invalid vote account %q: %w", opts.VoteAccount.Value(), err)
		}
		filters = append(filters, memcmp(voterOffset, voter))
	}
	return filters, nil
}

func memcmp(offset uint64, key solana.PublicKey) rpc.RPCFilter {
	return rpc.RPCFilter{Memcmp: &rpc.RPCFilterMemcmp{Offset: offset, Bytes: solana.Base58(key[:])}}
}
