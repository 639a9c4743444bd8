package signer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	testKey     = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	testChainID = int64(84532)
)

func unsignedTxBlob(t *testing.T) string {
	t.Helper()
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &to,
		Value:    big.NewInt(1000),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal unsigned tx: %v", err)
	}
	return hexutil.Encode(raw)
}

func TestNewLocal(t *testing.T) {
	sig, err := NewLocal(testKey, testChainID)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	if sig.Address() == "" {
		t.Error("empty address")
	}

	// 0x prefix is accepted too.
	prefixed, err := NewLocal("0x"+testKey, testChainID)
	if err != nil {
		t.Fatalf("NewLocal with prefix failed: %v", err)
	}
	if prefixed.Address() != sig.Address() {
		t.Error("prefix changed the derived address")
	}

	if _, err := NewLocal("zz", testChainID); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSignTransaction_RecoversSender(t *testing.T) {
	sig, err := NewLocal(testKey, testChainID)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	signedHex, err := sig.SignTransaction(context.Background(), unsignedTxBlob(t))
	if err != nil {
		t.Fatalf("SignTransaction failed: %v", err)
	}

	raw, err := hexutil.Decode(signedHex)
	if err != nil {
		t.Fatalf("decode signed blob: %v", err)
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		t.Fatalf("unmarshal signed tx: %v", err)
	}

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender.Hex() != sig.Address() {
		t.Errorf("recovered sender %s, signer address %s", sender.Hex(), sig.Address())
	}
}

func TestSignTransaction_AcceptsUnprefixedBlob(t *testing.T) {
	sig, err := NewLocal(testKey, testChainID)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	blob := unsignedTxBlob(t)
	if _, err := sig.SignTransaction(context.Background(), blob[2:]); err != nil {
		t.Errorf("unprefixed blob rejected: %v", err)
	}
}

func TestSignTransaction_InvalidBlob(t *testing.T) {
	sig, err := NewLocal(testKey, testChainID)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	if _, err := sig.SignTransaction(context.Background(), "0x00ff"); !errors.Is(err, ErrInvalidBlob) {
		t.Errorf("expected ErrInvalidBlob, got %v", err)
	}
}

func TestSignTransaction_ContextCancelled(t *testing.T) {
	sig, err := NewLocal(testKey, testChainID)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sig.SignTransaction(ctx, unsignedTxBlob(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewEphemeral(t *testing.T) {
	a, err := NewEphemeral(testChainID)
	if err != nil {
		t.Fatalf("NewEphemeral failed: %v", err)
	}
	b, err := NewEphemeral(testChainID)
	if err != nil {
		t.Fatalf("NewEphemeral failed: %v", err)
	}
	if a.Address() == b.Address() {
		t.Error("two ephemeral signers share an address")
	}
}
