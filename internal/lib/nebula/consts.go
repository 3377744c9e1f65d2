package nebula

import (
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

const (
	DefaultName            = "Nebula Node"
	DefaultIdentity        = "nebu15XQKGpxzhhckADBX9PgvGN5qk9RRJCFLKc118w"
	DefaultVoteAccount     = "nebu1WnZBrFZz5X7sfPWuEqyb8LBSsrXpxaesnK9CRE"
	DefaultWebsite         = "https://nebulanode.io"
	DefaultRefreshSchedule = "@every 1m"
)

var SecurityText = []string{
	"You can use this website to enhance your native staking experience. If you prefer, you may also stake " +
		"directly through wallets like Phantom, Solflare, Backpack, or any other supported platform.",
	"Rest assured, Solana's staking protocol ensures that validators never have access to your staked SOL. " +
		"You retain full ownership and control of your Stake Account at all times.",
}

var (
	ToolsEmptyMessage = "No tools available yet."
	ToolsHint         = "Check back soon!"
)

// Profile is the validator this node stakes to plus the locally watched wallets.
type Profile struct {
	Name                string   `yaml:"name" json:"name"`
	Identity            string   `yaml:"identity" json:"identityPubkey"`
	VoteAccount         string   `yaml:"voteAccount" json:"votePubkey"`
	Website             string   `yaml:"website" json:"website"`
	RentReserveLamports uint64   `yaml:"rentReserveLamports" json:"rentReserveLamports"`
	Wallets             []string `yaml:"wallets,omitempty" json:"-"`
	RefreshSchedule     string   `yaml:"refreshSchedule" json:"-"`
}

func DefaultProfile() Profile {
	return Profile{
		Name:                DefaultName,
		Identity:            DefaultIdentity,
		VoteAccount:         DefaultVoteAccount,
		Website:             DefaultWebsite,
		RentReserveLamports: stake.DefaultRentReserve,
		RefreshSchedule:     DefaultRefreshSchedule,
	}
}

// WithDefaults fills any unset field from DefaultProfile.
func (p Profile) WithDefaults() Profile {
	def := DefaultProfile()
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.Identity == "" {
		p.Identity = def.Identity
	}
	if p.VoteAccount == "" {
		p.VoteAccount = def.VoteAccount
	}
	if p.Website == "" {
		p.Website = def.Website
	}
	if p.RentReserveLamports == 0 {
		p.RentReserveLamports = def.RentReserveLamports
	}
	if p.RefreshSchedule == "" {
		p.RefreshSchedule = def.RefreshSchedule
	}
	return p
}
