package nebula

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NebulaNode/nebula/internal/lib/journal"
	"github.com/NebulaNode/nebula/internal/lib/session"
	"github.com/NebulaNode/nebula/internal/lib/sol"
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

type fakeChain struct {
	sync.Mutex
	balance  uint64
	accounts []sol.StakeAccount
	vote     *sol.VoteAccount
	epoch    sol.EpochInfo
	sendErr  error
	onSend   func()

	lastOpts *sol.StakeAccountsOpts
	sent     []*solana.Transaction
}

func (f *fakeChain) Balance(context.Context, solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeChain) StakeAccounts(_ context.Context, _ solana.PublicKey, opts *sol.StakeAccountsOpts) ([]sol.StakeAccount, error) {
	f.Lock()
	defer f.Unlock()
	f.lastOpts = opts
	return f.accounts, nil
}

func (f *fakeChain) EpochInfo(context.Context) (sol.EpochInfo, error) {
	return f.epoch, nil
}

func (f *fakeChain) VoteAccount(context.Context, solana.PublicKey) (*sol.VoteAccount, error) {
	return f.vote, nil
}

func (f *fakeChain) RentExemption(context.Context) (uint64, error) {
	return 2_282_880, nil
}

func (f *fakeChain) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{7}, nil
}

func (f *fakeChain) SendAndConfirm(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.Lock()
	defer f.Unlock()
	f.sent = append(f.sent, tx)
	if f.onSend != nil {
		f.onSend()
	}
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return tx.Signatures[0], nil
}

type fakeSigner struct {
	key solana.PrivateKey
}

func (f fakeSigner) HasAccount(address string) bool {
	return address == f.key.PublicKey().String()
}

func (f fakeSigner) Accounts() []string {
	return []string{f.key.PublicKey().String()}
}

func (f fakeSigner) SignWithAccount(_ context.Context, tx *solana.Transaction, _ string) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(f.key.PublicKey()) {
			return &f.key
		}
		return nil
	})
	return err
}

func sol2lamports(amount float64) uint64 {
	return uint64(amount*stake.LamportsPerSol + 0.5)
}

func delegated(lamports uint64, active bool) sol.StakeAccount {
	deactivation := uint64(sol.NotDeactivated)
	if !active {
		deactivation = 610
	}
	return sol.StakeAccount{
		Pubkey:   solana.NewWallet().PublicKey(),
		Lamports: lamports + 2_282_880,
		State: &sol.StakeState{
			Type:       sol.StakeStateStake,
			Delegation: &sol.StakeDelegation{StakeLamports: lamports, DeactivationEpoch: deactivation},
		},
	}
}

type testEnv struct {
	nebula  *Nebula
	chain   *fakeChain
	wallet  solana.PrivateKey
	journal *journal.SQLiteJournal
	guard   *session.MemoryGuard
}

func newTestEnv(t *testing.T) *testEnv {
	wallet := solana.NewWallet().PrivateKey
	chain := &fakeChain{}
	jrnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { jrnl.Close() })
	guard := session.NewMemoryGuard()

	n, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), chain, fakeSigner{key: wallet}, guard, jrnl, Profile{})
	require.NoError(t, err)
	return &testEnv{nebula: n, chain: chain, wallet: wallet, journal: jrnl, guard: guard}
}

func (e *testEnv) owner() string {
	return e.wallet.PublicKey().String()
}

func TestNewDefaults(t *testing.T) {
	env := newTestEnv(t)
	profile := env.nebula.Profile()
	assert.Equal(t, DefaultVoteAccount, profile.VoteAccount)
	assert.Equal(t, uint64(stake.DefaultRentReserve), profile.RentReserveLamports)

	_, err := New(env.nebula.Logger, env.chain, nil, nil, nil, Profile{VoteAccount: "bogus"})
	assert.Error(t, err)
}

func TestSnapshotFiltersOnValidator(t *testing.T) {
	env := newTestEnv(t)
	active := delegated(sol2lamports(2), true)
	env.chain.balance = sol2lamports(1.5)
	env.chain.accounts = []sol.StakeAccount{active, delegated(sol2lamports(4), false)}

	snapshot, err := env.nebula.Snapshot(context.Background(), env.owner())
	require.NoError(t, err)
	assert.Equal(t, env.owner(), snapshot.Address)
	assert.Equal(t, sol2lamports(1.5), snapshot.Balance)
	require.Len(t, snapshot.Accounts, 2)
	assert.Equal(t, stake.Account{Pubkey: active.Pubkey.String(), Lamports: sol2lamports(2), IsActive: true}, snapshot.Accounts[0])
	assert.False(t, snapshot.Accounts[1].IsActive)

	require.NotNil(t, env.chain.lastOpts)
	assert.Equal(t, DefaultVoteAccount, env.chain.lastOpts.VoteAccount.Value())
}

func TestSnapshotBadWallet(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.nebula.Snapshot(context.Background(), "")
	assert.ErrorIs(t, err, stake.ErrWalletNotProvided)
	_, err = env.nebula.Snapshot(context.Background(), "not-base58!")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.True(t, IsUserError(err))
}

func TestSummaryFirstStake(t *testing.T) {
	env := newTestEnv(t)
	env.chain.balance = sol2lamports(3)

	snapshot, err := env.nebula.Snapshot(context.Background(), env.owner())
	require.NoError(t, err)
	summary := env.nebula.Summary(snapshot)
	assert.Equal(t, sol2lamports(0.72), summary.Available)
	assert.Zero(t, summary.TotalStaked)
	assert.Equal(t, sol2lamports(0.36), summary.Presets.HalfStake)
	assert.Equal(t, sol2lamports(0.71), summary.Presets.MaxStake)
	assert.True(t, summary.NextEpoch.IsZero())
}

func TestLoadState(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.nebula.now = func() time.Time { return now }
	env.chain.vote = &sol.VoteAccount{VotePubkey: DefaultVoteAccount, ActivatedStake: sol2lamports(1000), Commission: 5}
	env.chain.epoch = sol.EpochInfo{Epoch: 600, SlotIndex: 431_000, SlotsInEpoch: 432_000}

	require.NoError(t, env.nebula.LoadState(context.Background()))
	state := env.nebula.State()
	assert.Equal(t, uint64(600), state.Epoch.Epoch)
	assert.Equal(t, now.Add(400*time.Second), state.NextEpoch)
	assert.Equal(t, uint8(5), state.Vote.Commission)

	summary := env.nebula.Summary(stake.Snapshot{Address: env.owner()})
	assert.Equal(t, state.NextEpoch, summary.NextEpoch)

	// unknown vote account is not an error
	env.chain.vote = nil
	assert.NoError(t, env.nebula.LoadState(context.Background()))
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t)
	small := delegated(sol2lamports(1), true)
	big := delegated(sol2lamports(5), true)
	env.chain.balance = sol2lamports(10)
	env.chain.accounts = []sol.StakeAccount{small, big}

	decision, err := env.nebula.Quote(context.Background(), env.owner(), stake.ActionUnstake, sol2lamports(2))
	require.NoError(t, err)
	assert.Equal(t, big.Pubkey.String(), decision.TargetPubkey)

	_, err = env.nebula.Quote(context.Background(), env.owner(), stake.ActionUnstake, sol2lamports(7))
	assert.ErrorIs(t, err, stake.ErrInvalidAmount)

	decision, err = env.nebula.Quote(context.Background(), env.owner(), stake.ActionStake, sol2lamports(10))
	require.NoError(t, err)
	assert.Equal(t, sol2lamports(10), decision.AmountLamports)
}

func TestPrepareTransactionUnsigned(t *testing.T) {
	env := newTestEnv(t)
	decision := stake.Decision{Action: stake.ActionStake, AmountLamports: sol2lamports(1)}

	prepared, err := env.nebula.PrepareTransaction(context.Background(), env.owner(), decision)
	require.NoError(t, err)
	assert.NotEmpty(t, prepared.StakeAccount)

	raw, err := base64.StdEncoding.DecodeString(prepared.Transaction)
	require.NoError(t, err)
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	assert.Equal(t, env.wallet.PublicKey(), tx.Message.AccountKeys[0])
	assert.Equal(t, solana.Hash{7}, tx.Message.RecentBlockhash)
	assert.True(t, tx.Signatures[0].IsZero())
	assert.Empty(t, env.chain.sent)
}

func TestExecuteUnstake(t *testing.T) {
	env := newTestEnv(t)
	target := delegated(sol2lamports(3), true)
	env.chain.balance = sol2lamports(1)
	env.chain.accounts = []sol.StakeAccount{target}

	result, err := env.nebula.Execute(context.Background(), env.owner(), stake.ActionUnstake, sol2lamports(1))
	require.NoError(t, err)
	assert.Equal(t, stake.StateConfirmed, result.State)
	assert.Equal(t, target.Pubkey.String(), result.StakeAccount)
	require.Len(t, env.chain.sent, 1)
	assert.NoError(t, env.chain.sent[0].VerifySignatures())

	history, err := env.nebula.History(context.Background(), env.owner(), 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.ID, history[0].ID)
	assert.Equal(t, stake.StateConfirmed, history[0].State)
	assert.Equal(t, result.Signature, history[0].Signature)
}

func TestExecuteSubmissionFailed(t *testing.T) {
	env := newTestEnv(t)
	env.chain.balance = sol2lamports(5)
	env.chain.sendErr = errors.New("node is behind")

	result, err := env.nebula.Execute(context.Background(), env.owner(), stake.ActionStake, sol2lamports(1))
	assert.ErrorIs(t, err, stake.ErrSubmissionFailed)
	assert.Equal(t, stake.StateFailed, result.State)
	// no automatic resubmission
	assert.Len(t, env.chain.sent, 1)

	history, err := env.nebula.History(context.Background(), env.owner(), 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, stake.StateFailed, history[0].State)
	assert.Contains(t, history[0].Error, "node is behind")

	// the claim was released, a new attempt may start
	env.chain.sendErr = nil
	_, err = env.nebula.Execute(context.Background(), env.owner(), stake.ActionStake, sol2lamports(1))
	assert.NoError(t, err)
}

func TestExecuteInvalidAmountIsJournaled(t *testing.T) {
	env := newTestEnv(t)
	env.chain.balance = sol2lamports(3)

	result, err := env.nebula.Execute(context.Background(), env.owner(), stake.ActionStake, sol2lamports(1))
	assert.ErrorIs(t, err, stake.ErrInvalidAmount)
	assert.NotErrorIs(t, err, stake.ErrSubmissionFailed)
	assert.Equal(t, stake.StateFailed, result.State)
	assert.Empty(t, env.chain.sent)
}

func TestExecuteInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.chain.balance = sol2lamports(5)

	release, err := env.guard.Acquire(context.Background(), env.owner(), stake.ActionStake)
	require.NoError(t, err)
	defer release()

	_, err = env.nebula.Execute(context.Background(), env.owner(), stake.ActionStake, sol2lamports(1))
	assert.ErrorIs(t, err, session.ErrInFlight)
	assert.Empty(t, env.chain.sent)
}

func TestExecuteWithoutKey(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.nebula.Execute(context.Background(), solana.NewWallet().PublicKey().String(), stake.ActionStake, 1)
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestRequestStateReturnsToIdle(t *testing.T) {
	env := newTestEnv(t)
	env.chain.balance = sol2lamports(5)
	assert.Equal(t, stake.StateIdle, env.nebula.RequestState(env.owner(), stake.ActionStake))

	var during stake.RequestState
	env.chain.onSend = func() { during = env.nebula.RequestState(env.owner(), stake.ActionStake) }
	result, err := env.nebula.Execute(context.Background(), env.owner(), stake.ActionStake, sol2lamports(1))
	require.NoError(t, err)
	assert.Equal(t, stake.StateSubmitting, during)
	assert.Equal(t, stake.StateConfirmed, result.State)
	assert.Equal(t, stake.StateIdle, env.nebula.RequestState(env.owner(), stake.ActionStake))

	env.chain.sendErr = errors.New("blockhash not found")
	result, err = env.nebula.Execute(context.Background(), env.owner(), stake.ActionStake, sol2lamports(1))
	assert.ErrorIs(t, err, stake.ErrSubmissionFailed)
	assert.Equal(t, stake.StateFailed, result.State)
	assert.Equal(t, stake.StateIdle, env.nebula.RequestState(env.owner(), stake.ActionStake))
}

func TestRefreshWalletGaugesOnlyForWatched(t *testing.T) {
	watched := solana.NewWallet().PublicKey().String()
	chain := &fakeChain{balance: sol2lamports(4)}
	n, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), chain, nil, nil, nil, Profile{Wallets: []string{watched}})
	require.NoError(t, err)

	stakedBefore := testutil.CollectAndCount(promWalletStaked)
	availableBefore := testutil.CollectAndCount(promWalletAvailable)
	for i := 0; i < 50; i++ {
		_, err := n.RefreshWallet(context.Background(), solana.NewWallet().PublicKey().String())
		require.NoError(t, err)
	}
	assert.Equal(t, stakedBefore, testutil.CollectAndCount(promWalletStaked))
	assert.Equal(t, availableBefore, testutil.CollectAndCount(promWalletAvailable))

	summary, err := n.RefreshWallet(context.Background(), watched)
	require.NoError(t, err)
	assert.Equal(t, stakedBefore+1, testutil.CollectAndCount(promWalletStaked))
	assert.InDelta(t, float64(summary.Available)/stake.LamportsPerSol,
		testutil.ToFloat64(promWalletAvailable.WithLabelValues(watched)), 1e-9)
}
