package sol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/ssgreg/repeat"
	"golang.org/x/oauth2"

	"github.com/NebulaNode/nebula/internal/lib/misc"
)

const (
	// SlotDuration is the target slot time used when estimating epoch boundaries.
	SlotDuration = 400 * time.Millisecond

	// DefaultConfirmTimeout bounds how long SendAndConfirm polls for a signature status.
	DefaultConfirmTimeout = 90 * time.Second

	maxReadTries = 4
)

var ErrConfirmTimeout = errors.New("timed out waiting for transaction confirmation")

// Client is a thin wrapper over the solana-go RPC client adding retries and logging for the calls we make.
type Client struct {
	rpc    *rpc.Client
	logger *slog.Logger

	Network        string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

func FormattedSolAmount(lamports uint64) string {
	formattedAmount := fmt.Sprintf("%.9f", float64(lamports)/float64(solana.LAMPORTS_PER_SOL))
	// chop trailing 0's and decimal (if nothing else)
	formattedAmount = strings.TrimRight(formattedAmount, "0")
	formattedAmount = strings.TrimRight(formattedAmount, ".")
	return formattedAmount
}

// TruncateAddress shortens an address for display as first4...last4.
func TruncateAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}

func GetRPCClient(ctx context.Context, log *slog.Logger, config NetworkConfig) (*Client, error) {
	if config.RPCURL == "" {
		return nil, fmt.Errorf("no rpc url configured for network:%s", config.Network)
	}
	rpcURL := strings.TrimRight(config.RPCURL, "/")
	misc.Infof(log, "Connecting to Solana %s rpc at:%s", config.Network, rpcURL)

	// Override the default transport so we can properly support multiple parallel connections to same
	// host (and allow connection reuse)
	customTransport := http.DefaultTransport.(*http.Transport).Clone()
	customTransport.MaxIdleConns = 100
	customTransport.MaxConnsPerHost = 100
	customTransport.MaxIdleConnsPerHost = 100
	httpClient := &http.Client{Transport: customTransport, Timeout: 30 * time.Second}
	if config.RPCToken != "" {
		// bearer auth for hosted rpc providers
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.RPCToken}))
	}
	jsonClient := jsonrpc.NewClientWithOpts(rpcURL, &jsonrpc.RPCClientOpts{
		HTTPClient:    httpClient,
		CustomHeaders: config.RPCHeaders,
	})
	client := NewClient(log, config.Network, rpc.NewWithCustomRPCClient(jsonClient))

	// Immediately hit server to verify connectivity
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("failed to get health from rpc at %s, error:%w", rpcURL, err)
	}
	return client, nil
}

// NewClient wraps an already constructed rpc client.
func NewClient(log *slog.Logger, network string, rpcClient *rpc.Client) *Client {
	return &Client{
		rpc:            rpcClient,
		logger:         log,
		Network:        network,
		ConfirmTimeout: DefaultConfirmTimeout,
		PollInterval:   2 * time.Second,
	}
}

func (c *Client) RPC() *rpc.Client {
	return c.rpc
}

// retryRead retries transient read failures with backoff. Writes are never routed through here.
func (c *Client) retryRead(ctx context.Context, name string, meth func() error) error {
	return repeat.Repeat(
		repeat.Fn(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := meth(); err != nil {
				return repeat.HintTemporary(err)
			}
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(maxReadTries),
		repeat.FnOnError(func(err error) error {
			misc.Debugf(c.logger, "retrying %s call, error:%s", name, err.Error())
			return err
		}),
		repeat.WithDelay(
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 250 * time.Millisecond,
				MaxDelay:  2 * time.Second,
			}).Set(),
		),
	)
}

// Balance returns the lamport balance of address at confirmed commitment.
func (c *Client) Balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var balance uint64
	err := c.retryRead(ctx, "getBalance", func() error {
		resp, err := c.rpc.GetBalance(ctx, address, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		balance = resp.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fetching balance of %s: %w", address, err)
	}
	return balance, nil
}

// RentExemption returns the minimum lamports a stake account must hold to be rent exempt.
func (c *Client) RentExemption(ctx context.Context) (uint64, error) {
	var lamports uint64
	err := c.retryRead(ctx, "getMinimumBalanceForRentExemption", func() error {
		var err error
		lamports, err = c.rpc.GetMinimumBalanceForRentExemption(ctx, StakeAccountSize, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("fetching rent exemption: %w", err)
	}
	return lamports, nil
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.retryRead(ctx, "getLatestBlockhash", func() error {
		resp, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		if resp.Value == nil {
			return errors.New("empty blockhash response")
		}
		hash = resp.Value.Blockhash
		return nil
	})
	if err != nil {
		return hash, fmt.Errorf("fetching latest blockhash: %w", err)
	}
	return hash, nil
}

// SendAndConfirm submits a signed transaction once and polls its status until it reaches confirmed
// commitment, fails on chain, or the confirm timeout passes.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sending transaction: %w", err)
	}
	c.logger.Info("transaction sent", "signature", sig.String())

	ctx, cancel := context.WithTimeout(ctx, c.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return sig, fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
			}
			return sig, ctx.Err()
		case <-ticker.C:
			confirmed, err := c.signatureConfirmed(ctx, sig)
			if err != nil {
				return sig, err
			}
			if confirmed {
				c.logger.Info("transaction confirmed", "signature", sig.String())
				return sig, nil
			}
		}
	}
}

func (c *Client) signatureConfirmed(ctx context.Context, sig solana.Signature) (bool, error) {
	resp, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		// transient - keep polling
		misc.Debugf(c.logger, "signature status fetch failed for %s, error:%v", sig, err)
		return false, nil
	}
	if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
		return false, nil
	}
	status := resp.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("transaction %s failed: %v", sig, status.Err)
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return true, nil
	}
	return false, nil
}

// Health reports whether the rpc node considers itself healthy.
func (c *Client) Health(ctx context.Context) error {
	status, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return err
	}
	if status != rpc.HealthOk {
		return fmt.Errorf("rpc node unhealthy: %s", status)
	}
	return nil
}
