package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// Typed-data hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Settlement(string escrowId,address winner,uint256 payout,uint256 nonce)
	settlementTypeHash = ethcrypto.Keccak256(
		[]byte("Settlement(string escrowId,address winner,uint256 payout,uint256 nonce)"),
	)
)

// VoucherSigner produces typed-data signatures over settlement vouchers so a
// treasury contract can verify a payout without trusting the server. The
// winner's account nonce is folded into the digest, which makes a stale
// voucher unverifiable once the account moves on.
type VoucherSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	domainSep  []byte // cached domain separator hash
}

// NewVoucherSigner creates a VoucherSigner from a hex-encoded secp256k1
// private key and the target chain ID.
func NewVoucherSigner(privateKeyHex string, chainID int) (*VoucherSigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/voucher: invalid private key: %w", err)
	}

	s := &VoucherSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
	s.domainSep = buildDomainSeparator("StakeArena", "1", chainID)

	return s, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *VoucherSigner) Address() common.Address {
	return s.address
}

// SignVoucher signs the settlement tuple and returns a hex-encoded 65-byte
// signature (r || s || v).
func (s *VoucherSigner) SignVoucher(escrowID, winner string, payout int64, nonce uint64) (string, error) {
	digest := typedDataHash(s.domainSep, settlementStructHash(escrowID, winner, payout, nonce))

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/voucher: signing escrow %s: %w", escrowID, err)
	}

	// go-ethereum returns v in {0,1}; typed-data verifiers expect {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverVoucherSigner recovers the address that signed the settlement tuple.
// Callers compare the result against the expected treasury address.
func RecoverVoucherSigner(escrowID, winner string, payout int64, nonce uint64, signature string, chainID int) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/voucher: invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/voucher: expected 65-byte signature, got %d bytes", len(sig))
	}

	// Undo the {27,28} offset before handing the signature to SigToPub.
	recoverable := make([]byte, 65)
	copy(recoverable, sig)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}

	domainSep := buildDomainSeparator("StakeArena", "1", chainID)
	digest := typedDataHash(domainSep, settlementStructHash(escrowID, winner, payout, nonce))

	pub, err := ethcrypto.SigToPub(digest, recoverable)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/voucher: recovering signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			domainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// settlementStructHash encodes and hashes the settlement tuple. Dynamic
// string members hash to their keccak256 per the typed-data encoding rules.
func settlementStructHash(escrowID, winner string, payout int64, nonce uint64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			settlementTypeHash,
			ethcrypto.Keccak256([]byte(escrowID)),
			common.LeftPadBytes(common.HexToAddress(winner).Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(payout)),
			bigIntTo32Bytes(new(big.Int).SetUint64(nonce)),
		),
	)
}

// typedDataHash computes the final digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func typedDataHash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
