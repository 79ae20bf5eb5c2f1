package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	PolygonChainID = 137
	// CTFExchange verifies orders on regular (non neg-risk) markets, which
	// is what the up/down rounds are.
	CTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	clobAuthMessage = "This message attests that I control the given wallet"
)

var (
	authDomainTypeHash  = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	orderDomainTypeHash = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	clobAuthTypeHash    = ethcrypto.Keccak256([]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"))
	orderTypeHash       = ethcrypto.Keccak256([]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"))
)

// OrderPayload holds the signed fields of a CLOB order. Amounts are
// base-unit integers (6 decimals).
type OrderPayload struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8 // 0 BUY, 1 SELL
	SignatureType uint8 // 0 EOA
}

// Signer produces EIP-712 signatures with the wallet key.
type Signer struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	authSep  []byte
	orderSep []byte
}

// NewSigner parses a hex secp256k1 key. exchange is the order verifying
// contract; empty means CTFExchange.
func NewSigner(privateKeyHex string, chainID int64, exchange string) (*Signer, error) {
	k, err := normalizeKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: %w", err)
	}
	pk, err := ethcrypto.HexToECDSA(k)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	if exchange == "" {
		exchange = CTFExchange
	}
	chain := big.NewInt(chainID)
	return &Signer{
		key:     pk,
		address: ethcrypto.PubkeyToAddress(pk.PublicKey),
		authSep: ethcrypto.Keccak256(concat(
			authDomainTypeHash,
			ethcrypto.Keccak256([]byte("ClobAuthDomain")),
			ethcrypto.Keccak256([]byte("1")),
			word(chain),
		)),
		orderSep: ethcrypto.Keccak256(concat(
			orderDomainTypeHash,
			ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
			ethcrypto.Keccak256([]byte("1")),
			word(chain),
			addressWord(common.HexToAddress(exchange)),
		)),
	}, nil
}

// Address is the wallet address of the key.
func (s *Signer) Address() common.Address { return s.address }

// SignClobAuth signs the L1 ClobAuth message used to derive API creds.
func (s *Signer) SignClobAuth(timestamp, nonce int64) (string, error) {
	return s.sign(s.clobAuthDigest(timestamp, nonce))
}

func (s *Signer) clobAuthDigest(timestamp, nonce int64) []byte {
	structHash := ethcrypto.Keccak256(concat(
		clobAuthTypeHash,
		addressWord(s.address),
		ethcrypto.Keccak256([]byte(fmt.Sprintf("%d", timestamp))),
		word(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	))
	return typedDigest(s.authSep, structHash)
}

// SignOrder signs o against the exchange domain.
func (s *Signer) SignOrder(o OrderPayload) (string, error) {
	return s.sign(s.orderDigest(o))
}

func (s *Signer) orderDigest(o OrderPayload) []byte {
	structHash := ethcrypto.Keccak256(concat(
		orderTypeHash,
		word(o.Salt),
		addressWord(o.Maker),
		addressWord(o.Signer),
		addressWord(o.Taker),
		word(o.TokenID),
		word(o.MakerAmount),
		word(o.TakerAmount),
		word(o.Expiration),
		word(o.Nonce),
		word(o.FeeRateBps),
		word(big.NewInt(int64(o.Side))),
		word(big.NewInt(int64(o.SignatureType))),
	))
	return typedDigest(s.orderSep, structHash)
}

// typedDigest is keccak256(0x1901 || domainSeparator || structHash).
func typedDigest(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concat([]byte{0x19, 0x01}, domainSep, structHash))
}

func (s *Signer) sign(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign: %w", err)
	}
	sig[64] += 27 // go-ethereum yields v in {0,1}
	return "0x" + hex.EncodeToString(sig), nil
}

// word left-pads n to a 32-byte ABI word. nil encodes as zero.
func word(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(n.Bytes(), 32)
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
