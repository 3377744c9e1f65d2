package sol

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/ed25519"

	"github.com/NebulaNode/nebula/internal/lib/misc"
)

// MultipleWalletSigner signs transactions on behalf of any of the wallets it holds keys for.
type MultipleWalletSigner interface {
	HasAccount(publicAddress string) bool
	Accounts() []string
	SignWithAccount(ctx context.Context, tx *solana.Transaction, publicAddress string) error
}

// NewLocalKeyStore loads keys from SOL_KEYPAIR* (base58 secret keys), SOL_KEYPAIR_FILE* (solana-keygen json
// files) and SOL_SEED* (hex encoded 32 byte ed25519 seeds) in the environment or registered secrets.
func NewLocalKeyStore(log *slog.Logger) (MultipleWalletSigner, error) {
	keyStore := &localKeyStore{
		log:  log,
		keys: map[string]solana.PrivateKey{},
	}
	if err := keyStore.loadFromEnvironment(); err != nil {
		return nil, err
	}
	return keyStore, nil
}

type localKeyStore struct {
	log *slog.Logger

	keys map[string]solana.PrivateKey
}

func (lk *localKeyStore) HasAccount(publicAddress string) bool {
	_, found := lk.keys[publicAddress]
	return found
}

func (lk *localKeyStore) Accounts() []string {
	var accounts []string
	for account := range lk.keys {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

func (lk *localKeyStore) SignWithAccount(ctx context.Context, tx *solana.Transaction, publicAddress string) error {
	if _, found := lk.keys[publicAddress]; !found {
		return fmt.Errorf("key not found for address %s", publicAddress)
	}
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if privKey, found := lk.keys[key.String()]; found {
			return &privKey
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("signing transaction with %s: %w", publicAddress, err)
	}
	return nil
}

func (lk *localKeyStore) loadFromEnvironment() error {
	loaders := []struct {
		prefix string
		load   func(value string) (solana.PrivateKey, error)
	}{
		// SOL_KEYPAIR_FILE must be checked before SOL_KEYPAIR would claim it
		{"SOL_KEYPAIR_FILE", loadKeygenFile},
		{"SOL_KEYPAIR", solana.PrivateKeyFromBase58},
		{"SOL_SEED", privateKeyFromHexSeed},
	}
	claimed := map[string]bool{}
	for _, loader := range loaders {
		for _, key := range misc.SecretKeysWithPrefix(loader.prefix) {
			if claimed[key] {
				continue
			}
			claimed[key] = true
			value := misc.GetSecret(key)
			if value == "" {
				continue
			}
			privKey, err := loader.load(value)
			if err != nil {
				return fmt.Errorf("loading key from %s: %w", key, err)
			}
			lk.addKey(privKey)
		}
	}
	misc.Infof(lk.log, "loaded %d keys", len(lk.keys))
	return nil
}

func (lk *localKeyStore) addKey(key solana.PrivateKey) {
	address := key.PublicKey().String()
	lk.keys[address] = key
	misc.Infof(lk.log, "Added key for wallet:%s", address)
}

func loadKeygenFile(path string) (solana.PrivateKey, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, path[2:])
	}
	return solana.PrivateKeyFromSolanaKeygenFile(path)
}

func privateKeyFromHexSeed(value string) (solana.PrivateKey, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}
