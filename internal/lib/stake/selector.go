package stake

import (
	"fmt"
)

const (
	LamportsPerSol = 1_000_000_000

	// DefaultRentReserve is held back from the wallet balance when it has no stake account yet, covering the
	// minimum balance needed to open the first one.
	DefaultRentReserve = 2_280_000_000

	// feeHeadroom is what a 'MAX' stake leaves behind for transaction fees.
	feeHeadroom = LamportsPerSol / 100
)

// Account is a single delegated stake account owned by the wallet, as observed at snapshot time.
type Account struct {
	Pubkey   string `json:"pubkey"`
	Lamports uint64 `json:"lamports"`
	IsActive bool   `json:"isActive"`
}

// Snapshot is the wallet state a single decision is made against. It is never mutated - callers fetch a new
// one after anything changes on chain.
type Snapshot struct {
	Address  string    `json:"address"`
	Balance  uint64    `json:"balance"`
	Accounts []Account `json:"stakeAccounts"`
}

func (s Snapshot) IsConnected() bool {
	return s.Address != ""
}

type Action int

const (
	ActionStake Action = iota + 1
	ActionUnstake
)

func (a Action) String() string {
	switch a {
	case ActionStake:
		return "stake"
	case ActionUnstake:
		return "unstake"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

func ParseAction(name string) (Action, error) {
	switch name {
	case "stake":
		return ActionStake, nil
	case "unstake":
		return ActionUnstake, nil
	}
	return 0, fmt.Errorf("unknown action:%q", name)
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Decision is the concrete action the selector settled on. For stakes AmountLamports is what gets delegated,
// for unstakes TargetPubkey is the (whole) account to deactivate.
type Decision struct {
	Action         Action `json:"action"`
	AmountLamports uint64 `json:"amountLamports"`
	TargetPubkey   string `json:"targetPubkey,omitempty"`
	TargetLamports uint64 `json:"targetLamports,omitempty"`
}

func (d Decision) String() string {
	if d.Action == ActionUnstake {
		return fmt.Sprintf("unstake %s (requested %s SOL, account holds %s SOL)", d.TargetPubkey,
			FormatSOL(d.AmountLamports), FormatSOL(d.TargetLamports))
	}
	return fmt.Sprintf("%s %s SOL", d.Action, FormatSOL(d.AmountLamports))
}

// Selector turns stake/unstake requests into decisions. The zero value reserves nothing for rent - use
// NewSelector for the default reserve.
type Selector struct {
	RentReserve uint64
}

func NewSelector() Selector {
	return Selector{RentReserve: DefaultRentReserve}
}

// AvailableBalance is the wallet balance minus the rent reserve, but only when no stake account exists yet.
func (s Selector) AvailableBalance(walletBalance uint64, accounts []Account) uint64 {
	if len(accounts) > 0 {
		return walletBalance
	}
	if walletBalance <= s.RentReserve {
		return 0
	}
	return walletBalance - s.RentReserve
}

// TotalStaked sums the lamports of active accounts only.
func TotalStaked(accounts []Account) uint64 {
	var total uint64
	for _, account := range accounts {
		if account.IsActive {
			total += account.Lamports
		}
	}
	return total
}

// AvailableBalance uses the default rent reserve.
func AvailableBalance(walletBalance uint64, accounts []Account) uint64 {
	return NewSelector().AvailableBalance(walletBalance, accounts)
}

// SelectUnstakeTarget picks the first active account large enough to cover requested. If none is, the largest
// active account is returned instead (earliest wins ties). A single unstake always targets one whole account.
func SelectUnstakeTarget(requested uint64, accounts []Account) (Account, error) {
	var (
		largest Account
		found   bool
	)
	for _, account := range accounts {
		if !account.IsActive {
			continue
		}
		if account.Lamports >= requested {
			return account, nil
		}
		if !found || account.Lamports > largest.Lamports {
			largest = account
			found = true
		}
	}
	if !found {
		return Account{}, ErrNotFound
	}
	return largest, nil
}

func (s Selector) ValidateStake(amount uint64, snapshot Snapshot) error {
	available := s.AvailableBalance(snapshot.Balance, snapshot.Accounts)
	if amount == 0 || amount > available {
		return fmt.Errorf("%w: stake of %s SOL must be more than 0 and at most %s SOL", ErrInvalidAmount,
			FormatSOL(amount), FormatSOL(available))
	}
	return nil
}

func (s Selector) ValidateUnstake(amount uint64, snapshot Snapshot) error {
	staked := TotalStaked(snapshot.Accounts)
	if amount == 0 || amount > staked {
		return fmt.Errorf("%w: unstake of %s SOL must be more than 0 and at most %s SOL", ErrInvalidAmount,
			FormatSOL(amount), FormatSOL(staked))
	}
	return nil
}

// Decide validates amount against the snapshot and, for unstakes, selects the account to target.
func (s Selector) Decide(snapshot Snapshot, action Action, amount uint64) (Decision, error) {
	if !snapshot.IsConnected() {
		return Decision{}, ErrWalletNotProvided
	}
	switch action {
	case ActionStake:
		if err := s.ValidateStake(amount, snapshot); err != nil {
			return Decision{}, err
		}
		return Decision{Action: ActionStake, AmountLamports: amount}, nil
	case ActionUnstake:
		if err := s.ValidateUnstake(amount, snapshot); err != nil {
			return Decision{}, err
		}
		target, err := SelectUnstakeTarget(amount, snapshot.Accounts)
		if err != nil {
			return Decision{}, err
		}
		return Decision{
			Action:         ActionUnstake,
			AmountLamports: amount,
			TargetPubkey:   target.Pubkey,
			TargetLamports: target.Lamports,
		}, nil
	}
	return Decision{}, fmt.Errorf("unknown action:%d", action)
}

// Presets are the HALF / MAX shortcuts offered next to an amount entry.
type Presets struct {
	HalfStake   uint64 `json:"halfStake"`
	MaxStake    uint64 `json:"maxStake"`
	HalfUnstake uint64 `json:"halfUnstake"`
	MaxUnstake  uint64 `json:"maxUnstake"`
}

// PresetsFor computes shortcuts rounded down to 0.01 SOL so they always pass validation.
func (s Selector) PresetsFor(snapshot Snapshot) Presets {
	available := s.AvailableBalance(snapshot.Balance, snapshot.Accounts)
	staked := TotalStaked(snapshot.Accounts)

	var maxStake uint64
	if available > feeHeadroom {
		maxStake = available - feeHeadroom
	}
	return Presets{
		HalfStake:   floorCents(available / 2),
		MaxStake:    floorCents(maxStake),
		HalfUnstake: floorCents(staked / 2),
		MaxUnstake:  staked,
	}
}

func floorCents(lamports uint64) uint64 {
	const cent = LamportsPerSol / 100
	return lamports - lamports%cent
}
