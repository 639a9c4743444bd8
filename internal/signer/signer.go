// Package signer abstracts wallet signing providers for ledger transactions.
//
// The transaction-build service returns an unsigned transaction blob; a
// Signer binds it to a participant key and network before broadcast. The
// default implementation holds a local key. An interactive wallet provider
// satisfies the same interface and may reject the request.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidKey  = errors.New("signer: invalid private key")
	ErrInvalidBlob = errors.New("signer: invalid unsigned transaction blob")

	// ErrRejected is returned when the signing provider declines the
	// request (e.g. the user dismissed the wallet dialog).
	ErrRejected = errors.New("signer: signing request rejected")
)

// Signer signs unsigned transaction blobs for a single participant address.
type Signer interface {
	// Address returns the participant address the signer is bound to.
	Address() string

	// SignTransaction signs a hex-encoded unsigned transaction blob and
	// returns the hex-encoded signed blob. The call may suspend for an
	// arbitrarily long time when a user interaction is involved; cancel
	// via ctx.
	SignTransaction(ctx context.Context, unsignedTx string) (string, error)
}

// Local signs transactions with an in-process EIP-155 key.
type Local struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewLocal creates a local signer from a hex private key bound to chainID.
func NewLocal(privateKeyHex string, chainID int64) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidKey)
	}

	return &Local{
		key:     key,
		address: crypto.PubkeyToAddress(*pub),
		chainID: big.NewInt(chainID),
	}, nil
}

// NewEphemeral creates a local signer with a freshly generated key. Demo
// mode only: the key lives in process memory and is gone on restart.
func NewEphemeral(chainID int64) (*Local, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("signer: generate key: %w", err)
	}
	return &Local{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

// Address returns the signer's address.
func (l *Local) Address() string {
	return l.address.Hex()
}

// SignTransaction decodes the unsigned blob, signs it for the bound chain,
// and re-encodes it.
func (l *Local) SignTransaction(ctx context.Context, unsignedTx string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := hexutil.Decode(withHexPrefix(unsignedTx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return "", fmt.Errorf("signer: sign transaction: %w", err)
	}

	out, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("signer: encode signed transaction: %w", err)
	}

	return hexutil.Encode(out), nil
}

func withHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}

// Compile-time assertion that Local implements Signer.
var _ Signer = (*Local)(nil)
