package crypto

import (
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Well-known throwaway key (hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func recoverAddress(t *testing.T, digest []byte, sigHex string) common.Address {
	t.Helper()
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		t.Fatalf("unexpected signature shape len=%d v=%d", len(sig), sig[64])
	}
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	return ethcrypto.PubkeyToAddress(*pub)
}

func TestSignerAddress(t *testing.T) {
	s, err := NewSigner("0x"+testKey, PolygonChainID, "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if s.Address() != want {
		t.Fatalf("address got=%s want=%s", s.Address().Hex(), want.Hex())
	}
}

func TestClobAuthSignatureRecovers(t *testing.T) {
	s, err := NewSigner(testKey, PolygonChainID, "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	sig, err := s.SignClobAuth(1700000000, 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got := recoverAddress(t, s.clobAuthDigest(1700000000, 0), sig); got != s.Address() {
		t.Fatalf("recovered %s want %s", got.Hex(), s.Address().Hex())
	}
}

func TestOrderSignatureBindsFields(t *testing.T) {
	s, err := NewSigner(testKey, PolygonChainID, "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	o := OrderPayload{
		Salt:        big.NewInt(42),
		Maker:       s.Address(),
		Signer:      s.Address(),
		TokenID:     big.NewInt(123456789),
		MakerAmount: big.NewInt(10_000_000),
		TakerAmount: big.NewInt(25_000_000),
	}
	sig, err := s.SignOrder(o)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got := recoverAddress(t, s.orderDigest(o), sig); got != s.Address() {
		t.Fatalf("recovered %s want %s", got.Hex(), s.Address().Hex())
	}

	changed := o
	changed.TakerAmount = big.NewInt(26_000_000)
	if hex.EncodeToString(s.orderDigest(o)) == hex.EncodeToString(s.orderDigest(changed)) {
		t.Fatalf("digest ignores taker amount")
	}
}

func TestSealOpenKey(t *testing.T) {
	env, err := SealKey("0x"+testKey, "hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := os.WriteFile(path, env, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := KeySource{KeyFile: path, Password: "hunter2"}.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != testKey {
		t.Fatalf("key got=%s", got)
	}
	if _, err := (KeySource{KeyFile: path, Password: "wrong"}).Resolve(); err == nil {
		t.Fatalf("wrong password accepted")
	}
}

func TestKeySourcePrefersRawKey(t *testing.T) {
	got, err := KeySource{RawKey: "0x" + strings.ToUpper(testKey), KeyFile: "/nonexistent"}.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != testKey {
		t.Fatalf("key got=%s", got)
	}
	if _, err := (KeySource{RawKey: "abc"}).Resolve(); err == nil {
		t.Fatalf("short key accepted")
	}
	if _, err := (KeySource{}).Resolve(); err == nil {
		t.Fatalf("empty source accepted")
	}
}

func TestL2HeadersDeterministic(t *testing.T) {
	creds := APICreds{Key: "key-1", Secret: "c2VjcmV0LXNlY3JldA==", Passphrase: "pass"}
	a := creds.HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)
	b := creds.HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)
	if a["POLY_SIGNATURE"] != b["POLY_SIGNATURE"] || a["POLY_SIGNATURE"] == "" {
		t.Fatalf("signature not deterministic: %q %q", a["POLY_SIGNATURE"], b["POLY_SIGNATURE"])
	}
	c := creds.HeadersAt("0xabc", "POST", "/order", `{"x":2}`, 1700000000)
	if c["POLY_SIGNATURE"] == a["POLY_SIGNATURE"] {
		t.Fatalf("signature ignores body")
	}
	if a["POLY_TIMESTAMP"] != "1700000000" || a["POLY_API_KEY"] != "key-1" {
		t.Fatalf("unexpected headers %v", a)
	}
	if strings.Contains(creds.String(), "c2VjcmV0") {
		t.Fatalf("String leaks secret")
	}
}
