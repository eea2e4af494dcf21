package clients

import (
	"encoding/json"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

const DefaultSolanaRPC = "https://api.mainnet-beta.solana.com"

// SolanaClient bundles an RPC connection with the wallet keypair that signs transactions.
type SolanaClient struct {
	rpc    *rpc.Client
	wallet solana.PrivateKey
}

// NewSolanaClient connects to rpcURL and loads the wallet key.
// The key is either a base58 secret key or a JSON byte array as written by solana-keygen.
func NewSolanaClient(rpcURL, walletKey string) (*SolanaClient, error) {
	if rpcURL == "" {
		rpcURL = DefaultSolanaRPC
	}

	key, err := ParseWalletKey(walletKey)
	if err != nil {
		return nil, err
	}

	return &SolanaClient{rpc: rpc.New(rpcURL), wallet: key}, nil
}

// ParseWalletKey decodes a Solana secret key.
func ParseWalletKey(walletKey string) (solana.PrivateKey, error) {
	walletKey = strings.TrimSpace(walletKey)
	if walletKey == "" {
		return nil, errors.New("wallet key is empty")
	}

	if strings.HasPrefix(walletKey, "[") {
		var raw []byte
		if err := json.Unmarshal([]byte(walletKey), &raw); err != nil {
			return nil, errors.Wrap(err, "parse wallet key byte array")
		}
		if len(raw) != 64 {
			return nil, errors.Errorf("wallet key must be 64 bytes, got %d", len(raw))
		}
		return solana.PrivateKey(raw), nil
	}

	key, err := solana.PrivateKeyFromBase58(walletKey)
	if err != nil {
		return nil, errors.Wrap(err, "parse base58 wallet key")
	}
	return key, nil
}

func (c *SolanaClient) RPC() *rpc.Client          { return c.rpc }
func (c *SolanaClient) Wallet() solana.PrivateKey { return c.wallet }
func (c *SolanaClient) Owner() solana.PublicKey   { return c.wallet.PublicKey() }
