package wallet

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// 来自 go-ethereum 文档的知名测试私钥，不对应任何真实资产。
const testKey = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19"

func TestFromHexDerivesStableAddress(t *testing.T) {
	signer, err := FromHex(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	withPrefix, err := FromHex("0x" + testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signer.Address() != withPrefix.Address() {
		t.Fatalf("0x prefix changed the derived address")
	}
}

func TestFromHexRejectsGarbageWithoutEchoingIt(t *testing.T) {
	secret := "definitely-not-a-key-material"
	_, err := FromHex(secret)
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	if strings.Contains(err.Error(), secret) {
		t.Fatalf("error message leaks the raw input: %v", err)
	}
}

func TestSignMessageRecoversSigner(t *testing.T) {
	signer, err := FromHex(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	signed, err := signer.SignMessage("hello eigenclaw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signed.Address != signer.Address().Hex() {
		t.Fatalf("address mismatch: %s", signed.Address)
	}
	if signed.V != 27 && signed.V != 28 {
		t.Fatalf("v = %d", signed.V)
	}

	sig, err := hexutil.Decode(signed.Signature)
	if err != nil || len(sig) != 65 {
		t.Fatalf("signature encoding: %v (%d bytes)", err, len(sig))
	}
	sig[64] -= 27
	digest := accounts.TextHash([]byte("hello eigenclaw"))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != signer.Address() {
		t.Fatalf("recovered address does not match signer")
	}
}

func TestLoadWithoutKeyReportsNotConfigured(t *testing.T) {
	t.Setenv(PrivateKeyEnv, "")
	// Load 进程内缓存，这里直接走一次性的解析路径验证行为。
	if _, err := FromHex(""); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("empty key must be rejected, got %v", err)
	}
	info := Info()
	if info["address"] != nil && info["error"] == nil {
		t.Fatalf("info leaked an identity without a configured key: %v", info)
	}
}
