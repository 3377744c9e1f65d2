package nebula

import (
	"fmt"
	"strings"
)

// Panel is one of the fixed entry points of the staking UI.
type Panel int

const (
	PanelStake Panel = iota
	PanelUnstake
	PanelSecurity
	PanelTools
)

var Panels = []Panel{PanelStake, PanelUnstake, PanelSecurity, PanelTools}

// PanelConfig is the presentation record for a panel. BaseSize is in pixels at desktop width.
type PanelConfig struct {
	Panel          Panel   `json:"panel"`
	Label          string  `json:"label"`
	Title          string  `json:"title"`
	BaseSize       int     `json:"baseSize"`
	Parallax       float64 `json:"parallax"`
	RequiresWallet bool    `json:"requiresWallet"`
}

func (p Panel) String() string {
	switch p {
	case PanelStake:
		return "stake"
	case PanelUnstake:
		return "unstake"
	case PanelSecurity:
		return "security"
	case PanelTools:
		return "tools"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

func (p Panel) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Panel) UnmarshalText(text []byte) error {
	parsed, err := ParsePanel(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func ParsePanel(name string) (Panel, error) {
	for _, panel := range Panels {
		if strings.EqualFold(panel.String(), name) {
			return panel, nil
		}
	}
	return 0, fmt.Errorf("unknown panel:%q", name)
}

func (p Panel) Config() PanelConfig {
	switch p {
	case PanelStake:
		return PanelConfig{Panel: p, Label: "Stake", Title: "STAKE", BaseSize: 280, Parallax: 0.12, RequiresWallet: true}
	case PanelUnstake:
		return PanelConfig{Panel: p, Label: "Unstake", Title: "UNSTAKE", BaseSize: 200, Parallax: 0.10, RequiresWallet: true}
	case PanelSecurity:
		return PanelConfig{Panel: p, Label: "Security", Title: "Security", BaseSize: 140, Parallax: 0.08}
	case PanelTools:
		return PanelConfig{Panel: p, Label: "Tools", Title: "TOOLS", BaseSize: 110, Parallax: 0.06}
	}
	return PanelConfig{Panel: p}
}

// ScaledSize shrinks BaseSize for narrow viewports: half below 640px, 70% below 1024px.
func (c PanelConfig) ScaledSize(viewportWidth int) int {
	switch {
	case viewportWidth < 640:
		return (c.BaseSize + 1) / 2
	case viewportWidth < 1024:
		return (c.BaseSize*7 + 5) / 10
	}
	return c.BaseSize
}

// WalletRequiredMessage is shown when a panel needing a wallet is used without one.
func (c PanelConfig) WalletRequiredMessage() string {
	if !c.RequiresWallet {
		return ""
	}
	return fmt.Sprintf("Please connect your wallet to %s.", c.Panel)
}
