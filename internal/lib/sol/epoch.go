package sol

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type EpochInfo struct {
	Epoch        uint64 `json:"epoch"`
	SlotIndex    uint64 `json:"slotIndex"`
	SlotsInEpoch uint64 `json:"slotsInEpoch"`
	AbsoluteSlot uint64 `json:"absoluteSlot"`
}

// Progress is the fraction of the epoch already elapsed, 0..1.
func (e EpochInfo) Progress() float64 {
	if e.SlotsInEpoch == 0 {
		return 0
	}
	return float64(e.SlotIndex) / float64(e.SlotsInEpoch)
}

// NextEpochEstimate is when the following epoch is expected to start, assuming slotDuration per remaining slot.
func NextEpochEstimate(info EpochInfo, slotDuration time.Duration, now time.Time) time.Time {
	if info.SlotIndex >= info.SlotsInEpoch {
		return now
	}
	remaining := info.SlotsInEpoch - info.SlotIndex
	return now.Add(time.Duration(remaining) * slotDuration)
}

func (c *Client) EpochInfo(ctx context.Context) (EpochInfo, error) {
	var info EpochInfo
	err := c.retryRead(ctx, "getEpochInfo", func() error {
		resp, err := c.rpc.GetEpochInfo(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		info = EpochInfo{
			Epoch:        resp.Epoch,
			SlotIndex:    resp.SlotIndex,
			SlotsInEpoch: resp.SlotsInEpoch,
			AbsoluteSlot: resp.AbsoluteSlot,
		}
		return nil
	})
	if err != nil {
		return EpochInfo{}, fmt.Errorf("fetching epoch info: %w", err)
	}
	return info, nil
}

// VoteAccount is the cluster's view of a validator vote account.
type VoteAccount struct {
	VotePubkey     string `json:"votePubkey"`
	NodePubkey     string `json:"nodePubkey"`
	ActivatedStake uint64 `json:"activatedStake"`
	Commission     uint8  `json:"commission"`
	LastVote       uint64 `json:"lastVote"`
	Delinquent     bool   `json:"delinquent"`
}

// VoteAccount looks up votePubkey in the current and delinquent vote account sets. A nil result with no error
// means the cluster doesn't know the account.
func (c *Client) VoteAccount(ctx context.Context, votePubkey solana.PublicKey) (*VoteAccount, error) {
	var resp *rpc.GetVoteAccountsResult
	err := c.retryRead(ctx, "getVoteAccounts", func() error {
		var err error
		resp, err = c.rpc.GetVoteAccounts(ctx, &rpc.GetVoteAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			VotePubkey: &votePubkey,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching vote account %s: %w", votePubkey, err)
	}
	return findVoteAccount(resp, votePubkey), nil
}

func findVoteAccount(resp *rpc.GetVoteAccountsResult, votePubkey solana.PublicKey) *VoteAccount {
	if resp == nil {
		return nil
	}
	convert := func(account rpc.VoteAccountsResult, delinquent bool) *VoteAccount {
		return &VoteAccount{
			VotePubkey:     account.VotePubkey.String(),
			NodePubkey:     account.NodePubkey.String(),
			ActivatedStake: account.ActivatedStake,
			Commission:     account.Commission,
			LastVote:       account.LastVote,
			Delinquent:     delinquent,
		}
	}
	for _, account := range resp.Current {
		if account.VotePubkey.Equals(votePubkey) {
			return convert(account, false)
		}
	}
	for _, account := range resp.Delinquent {
		if account.VotePubkey.Equals(votePubkey) {
			return convert(account, true)
		}
	}
	return nil
}
