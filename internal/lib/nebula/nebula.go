package nebula

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antihax/optional"
	"github.com/gagliardetto/solana-go"

	"github.com/NebulaNode/nebula/internal/lib/journal"
	"github.com/NebulaNode/nebula/internal/lib/misc"
	"github.com/NebulaNode/nebula/internal/lib/session"
	"github.com/NebulaNode/nebula/internal/lib/sol"
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

// Chain is the subset of the Solana RPC layer the service needs. *sol.Client satisfies it.
type Chain interface {
	Balance(ctx context.Context, address solana.PublicKey) (uint64, error)
	StakeAccounts(ctx context.Context, staker solana.PublicKey, opts *sol.StakeAccountsOpts) ([]sol.StakeAccount, error)
	EpochInfo(ctx context.Context) (sol.EpochInfo, error)
	VoteAccount(ctx context.Context, votePubkey solana.PublicKey) (*sol.VoteAccount, error)
	RentExemption(ctx context.Context) (uint64, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// ValidatorState is the periodically refreshed on-chain view of the validator.
type ValidatorState struct {
	Vote      *sol.VoteAccount `json:"voteAccount,omitempty"`
	Epoch     sol.EpochInfo    `json:"epoch"`
	NextEpoch time.Time        `json:"nextEpoch"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type Nebula struct {
	Logger *slog.Logger

	chain    Chain
	signer   sol.MultipleWalletSigner
	guard    session.Guard
	journal  journal.Journal
	selector stake.Selector
	profile  Profile
	voteKey  solana.PublicKey
	watched  map[string]bool
	requests sync.Map // wallet:action -> *stake.Request

	now func() time.Time

	// refreshed by LoadState
	sync.RWMutex
	state ValidatorState
}

// New builds the service. signer may be nil, in which case only unsigned transactions can be prepared.
func New(
	logger *slog.Logger,
	chain Chain,
	signer sol.MultipleWalletSigner,
	guard session.Guard,
	jrnl journal.Journal,
	profile Profile,
) (*Nebula, error) {
	profile = profile.WithDefaults()
	voteKey, err := solana.PublicKeyFromBase58(profile.VoteAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid vote account %q: %w", profile.VoteAccount, err)
	}
	if guard == nil {
		guard = session.NewMemoryGuard()
	}
	if jrnl == nil {
		jrnl = journal.Discard{}
	}
	watched := make(map[string]bool, len(profile.Wallets))
	for _, wallet := range profile.Wallets {
		watched[wallet] = true
	}
	misc.Infof(logger, "staking to %s, vote account:%s", profile.Name, profile.VoteAccount)
	return &Nebula{
		Logger:   logger,
		chain:    chain,
		signer:   signer,
		guard:    guard,
		journal:  jrnl,
		selector: stake.Selector{RentReserve: profile.RentReserveLamports},
		profile:  profile,
		voteKey:  voteKey,
		watched:  watched,
		now:      time.Now,
	}, nil
}

func (n *Nebula) Profile() Profile {
	return n.profile
}

func (n *Nebula) State() ValidatorState {
	n.RLock()
	defer n.RUnlock()
	return n.state
}

func (n *Nebula) setState(state ValidatorState) {
	n.Lock()
	defer n.Unlock()
	n.state = state
}

// LoadState fetches the vote account and epoch from the chain and updates the validator metrics.
func (n *Nebula) LoadState(ctx context.Context) error {
	vote, err := n.chain.VoteAccount(ctx, n.voteKey)
	if err != nil {
		return err
	}
	epoch, err := n.chain.EpochInfo(ctx)
	if err != nil {
		return err
	}
	now := n.now()
	state := ValidatorState{
		Vote:      vote,
		Epoch:     epoch,
		NextEpoch: sol.NextEpochEstimate(epoch, sol.SlotDuration, now),
		UpdatedAt: now,
	}
	n.setState(state)

	promEpoch.Set(float64(epoch.Epoch))
	if vote == nil {
		misc.Warnf(n.Logger, "vote account %s not found in cluster vote accounts", n.profile.VoteAccount)
		return nil
	}
	promActivatedStake.Set(float64(vote.ActivatedStake) / stake.LamportsPerSol)
	promCommission.Set(float64(vote.Commission))
	if vote.Delinquent {
		promDelinquent.Set(1)
	} else {
		promDelinquent.Set(0)
	}
	return nil
}

func parseWallet(owner string) (solana.PublicKey, error) {
	if owner == "" {
		return solana.PublicKey{}, stake.ErrWalletNotProvided
	}
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrInvalidAddress, owner)
	}
	return pk, nil
}

// Snapshot fetches the wallet balance and its stake accounts delegated to our validator.
func (n *Nebula) Snapshot(ctx context.Context, owner string) (stake.Snapshot, error) {
	wallet, err := parseWallet(owner)
	if err != nil {
		return stake.Snapshot{}, err
	}
	balance, err := n.chain.Balance(ctx, wallet)
	if err != nil {
		return stake.Snapshot{}, err
	}
	stakeAccounts, err := n.chain.StakeAccounts(ctx, wallet, &sol.StakeAccountsOpts{
		VoteAccount: optional.NewString(n.profile.VoteAccount),
	})
	if err != nil {
		return stake.Snapshot{}, err
	}
	snapshot := stake.Snapshot{Address: wallet.String(), Balance: balance}
	for _, account := range stakeAccounts {
		snapshot.Accounts = append(snapshot.Accounts, stake.Account{
			Pubkey:   account.Pubkey.String(),
			Lamports: account.DelegatedLamports(),
			IsActive: account.IsActive(),
		})
	}
	return snapshot, nil
}

// Summary is everything shown next to an amount entry.
type Summary struct {
	stake.Snapshot
	Available   uint64        `json:"available"`
	TotalStaked uint64        `json:"totalStaked"`
	Presets     stake.Presets `json:"presets"`
	NextEpoch   time.Time     `json:"nextEpoch"`
}

func (n *Nebula) Summary(snapshot stake.Snapshot) Summary {
	summary := Summary{
		Snapshot:    snapshot,
		Available:   n.selector.AvailableBalance(snapshot.Balance, snapshot.Accounts),
		TotalStaked: stake.TotalStaked(snapshot.Accounts),
		Presets:     n.selector.PresetsFor(snapshot),
	}
	if state := n.State(); !state.UpdatedAt.IsZero() {
		summary.NextEpoch = state.NextEpoch
	}
	return summary
}

// RefreshWallet takes a snapshot of owner. Staked and available gauges are only published for the profile's
// watched wallets, so arbitrary lookups can't add metric series.
func (n *Nebula) RefreshWallet(ctx context.Context, owner string) (Summary, error) {
	snapshot, err := n.Snapshot(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	summary := n.Summary(snapshot)
	if !n.watched[snapshot.Address] {
		return summary, nil
	}
	promWalletStaked.WithLabelValues(snapshot.Address).Set(float64(summary.TotalStaked) / stake.LamportsPerSol)
	promWalletAvailable.WithLabelValues(snapshot.Address).Set(float64(summary.Available) / stake.LamportsPerSol)
	return summary, nil
}

// Quote validates a request against a fresh snapshot of the wallet.
func (n *Nebula) Quote(ctx context.Context, owner string, action stake.Action, amount uint64) (stake.Decision, error) {
	snapshot, err := n.Snapshot(ctx, owner)
	if err != nil {
		return stake.Decision{}, err
	}
	return n.selector.Decide(snapshot, action, amount)
}

// Prepared is a decision turned into a transaction the wallet still has to sign.
type Prepared struct {
	Decision     stake.Decision `json:"decision"`
	StakeAccount string         `json:"stakeAccount"`
	Transaction  string         `json:"transaction"`
}

// PrepareTransaction builds the transaction for decision and encodes it unsigned for an external wallet.
func (n *Nebula) PrepareTransaction(ctx context.Context, owner string, decision stake.Decision) (Prepared, error) {
	wallet, err := parseWallet(owner)
	if err != nil {
		return Prepared{}, err
	}
	tx, target, err := n.buildTransaction(ctx, wallet, decision)
	if err != nil {
		return Prepared{}, err
	}
	encoded, err := sol.EncodeUnsigned(tx)
	if err != nil {
		return Prepared{}, err
	}
	return Prepared{Decision: decision, StakeAccount: target.String(), Transaction: encoded}, nil
}

func (n *Nebula) buildTransaction(ctx context.Context, wallet solana.PublicKey, decision stake.Decision) (*solana.Transaction, solana.PublicKey, error) {
	blockhash, err := n.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	switch decision.Action {
	case stake.ActionStake:
		rent, err := n.chain.RentExemption(ctx)
		if err != nil {
			return nil, solana.PublicKey{}, err
		}
		return sol.BuildStakeTransaction(sol.StakeParams{
			Wallet:      wallet,
			VoteAccount: n.voteKey,
			Lamports:    decision.AmountLamports,
			Rent:        rent,
			Seed:        sol.NewStakeSeed(),
			Blockhash:   blockhash,
		})
	case stake.ActionUnstake:
		target, err := solana.PublicKeyFromBase58(decision.TargetPubkey)
		if err != nil {
			return nil, solana.PublicKey{}, fmt.Errorf("invalid target stake account %q: %w", decision.TargetPubkey, err)
		}
		tx, err := sol.BuildUnstakeTransaction(wallet, target, blockhash)
		return tx, target, err
	}
	return nil, solana.PublicKey{}, fmt.Errorf("unknown action:%d", decision.Action)
}

// Result is the outcome of an executed request.
type Result struct {
	ID           string             `json:"id"`
	Decision     stake.Decision     `json:"decision"`
	StakeAccount string             `json:"stakeAccount,omitempty"`
	Signature    string             `json:"signature,omitempty"`
	State        stake.RequestState `json:"state"`
}

// Execute quotes, builds, signs and submits a request using the local key store. At most one request per wallet
// and action runs at a time. Nothing is retried: a failed submission is journaled and returned.
func (n *Nebula) Execute(ctx context.Context, owner string, action stake.Action, amount uint64) (Result, error) {
	if n.signer == nil || !n.signer.HasAccount(owner) {
		return Result{}, fmt.Errorf("%w: %s", ErrNoSigner, owner)
	}
	release, err := n.guard.Acquire(ctx, owner, action)
	if err != nil {
		return Result{}, err
	}
	defer release()

	id, err := n.journal.Begin(ctx, owner, action, amount)
	if err != nil {
		return Result{}, err
	}
	request := n.request(owner, action)
	if err = request.Begin(); err != nil {
		return Result{}, err
	}
	result := Result{ID: id}

	finish := func(target, signature string, err error) (Result, error) {
		result.State = request.Complete(err)
		defer request.Reset()
		result.StakeAccount, result.Signature = target, signature
		// the request itself is done, record it even if the caller's context is gone
		journalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if jErr := n.journal.Finish(journalCtx, id, target, signature, err); jErr != nil {
			misc.Errorf(n.Logger, "unable to journal request %s: %v", id, jErr)
		}
		promRequests.WithLabelValues(action.String(), result.State.String()).Inc()
		return result, err
	}

	decision, err := n.Quote(ctx, owner, action, amount)
	if err != nil {
		return finish("", "", err)
	}
	result.Decision = decision

	wallet, _ := parseWallet(owner)
	tx, target, err := n.buildTransaction(ctx, wallet, decision)
	if err != nil {
		return finish("", "", fmt.Errorf("%w: %w", stake.ErrSubmissionFailed, err))
	}
	if err = n.signer.SignWithAccount(ctx, tx, owner); err != nil {
		return finish(target.String(), "", fmt.Errorf("%w: %w", stake.ErrSubmissionFailed, err))
	}
	misc.Infof(n.Logger, "submitting %s for %s", decision, sol.TruncateAddress(owner))
	sig, err := n.chain.SendAndConfirm(ctx, tx)
	if err != nil {
		signature := ""
		if !sig.IsZero() {
			signature = sig.String()
		}
		return finish(target.String(), signature, fmt.Errorf("%w: %w", stake.ErrSubmissionFailed, err))
	}
	return finish(target.String(), sig.String(), nil)
}

func (n *Nebula) request(owner string, action stake.Action) *stake.Request {
	req, _ := n.requests.LoadOrStore(owner+":"+action.String(), stake.NewRequest(action))
	return req.(*stake.Request)
}

// RequestState reports where owner's current request for action is. Finished requests are back to idle.
func (n *Nebula) RequestState(owner string, action stake.Action) stake.RequestState {
	if req, ok := n.requests.Load(owner + ":" + action.String()); ok {
		return req.(*stake.Request).State()
	}
	return stake.StateIdle
}

// History lists the most recent journaled requests for owner.
func (n *Nebula) History(ctx context.Context, owner string, limit int) ([]journal.Entry, error) {
	if _, err := parseWallet(owner); err != nil {
		return nil, err
	}
	return n.journal.Recent(ctx, owner, limit)
}

// IsUserError reports whether err is caused by the request rather than the chain or the service.
func IsUserError(err error) bool {
	return errors.Is(err, stake.ErrInvalidAmount) || errors.Is(err, stake.ErrNotFound) ||
		errors.Is(err, stake.ErrWalletNotProvided) || errors.Is(err, ErrInvalidAddress)
}
