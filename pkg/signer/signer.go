// Package signer implements the bridge signature authority: it validates the
// wallet signatures that authorize conversion requests and claims, and issues
// the authority signatures the destination-chain contract verifies before
// releasing funds.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	"github.com/openbridge/converter-core/pkg/conversion"
)

var (
	ErrSignatureExpired   = errors.New("signature block number outside freshness window")
	ErrIncorrectSignature = errors.New("signature recovers to unexpected address")
	ErrMalformedSignature = errors.New("malformed signature")
)

// HeadSource reads the current head block number of the account-based chain.
type HeadSource interface {
	HeadBlock(ctx context.Context) (uint64, error)
}

// Authority verifies request/claim signatures and issues contract
// authorization signatures with the bridge authority key.
type Authority struct {
	key          *ecdsa.PrivateKey
	expiryBlocks uint64
	heads        HeadSource
	logger       *zap.Logger
}

// NewAuthority creates an Authority from a hex-encoded secp256k1 private key.
// expiryBlocks is the request freshness window measured in blocks behind the
// chain head.
func NewAuthority(hexKey string, expiryBlocks uint64, heads HeadSource, logger *zap.Logger) (*Authority, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load authority key: %w", err)
	}
	return &Authority{
		key:          key,
		expiryBlocks: expiryBlocks,
		heads:        heads,
		logger:       logger,
	}, nil
}

// Address returns the authority's signing address.
func (a *Authority) Address() common.Address {
	return crypto.PubkeyToAddress(a.key.PublicKey)
}

// Request carries the fields of a signed conversion request.
type Request struct {
	TokenPairID string
	Amount      decimal.Decimal
	FromAddress string
	ToAddress   string
	BlockNumber uint64
	Signature   string
	ChainID     int64
	// SignerIsFrom is true when the source chain is account-based: only
	// that chain's party holds an ECDSA-recoverable key, so the expected
	// signer flips between from and to depending on conversion direction.
	SignerIsFrom bool
}

// ValidateRequestSignature checks the freshness window and recovers the
// signer from the request signature. The freshness check runs first: an
// expired request is rejected before any recovery work.
func (a *Authority) ValidateRequestSignature(ctx context.Context, req Request) error {
	head, err := a.heads.HeadBlock(ctx)
	if err != nil {
		return apperrors.DependencyError(fmt.Errorf("failed to read chain head: %w", err))
	}

	var oldest uint64
	if head > a.expiryBlocks {
		oldest = head - a.expiryBlocks
	}
	if req.BlockNumber > head || req.BlockNumber < oldest {
		a.logger.Info("Rejecting stale conversion request",
			zap.Uint64("block_number", req.BlockNumber),
			zap.Uint64("head", head),
			zap.Uint64("window", a.expiryBlocks))
		return apperrors.BadRequestError(ErrSignatureExpired,
			apperrors.CodeSignatureExpired, "signature has expired")
	}

	digest := requestDigest(req)

	expected := req.ToAddress
	if req.SignerIsFrom {
		expected = req.FromAddress
	}
	return a.verifySigner(digest, req.Signature, expected)
}

// Claim carries the fields of a signed claim request.
type Claim struct {
	ConversionID string
	Amount       decimal.Decimal
	FromAddress  string
	ToAddress    string
	Signature    string
	ChainID      int64
	// ExpectedSigner is the wallet pair's destination address; the claim
	// must be signed by the receiving party.
	ExpectedSigner string
}

// ValidateClaimSignature re-derives the signer from the claim fields and
// requires it to equal the wallet pair's destination address. Malformed
// signatures and wrong-signer signatures are reported as distinct codes.
func (a *Authority) ValidateClaimSignature(claim Claim) error {
	digest := claimDigest(claim)
	return a.verifySigner(digest, claim.Signature, claim.ExpectedSigner)
}

// IssueSignature produces the bridge authority signature over the canonical
// encoding of a contract interaction. The destination contract recovers the
// authority address from it before releasing funds.
func (a *Authority) IssueSignature(
	kind conversion.SignatureKind,
	userAddress string,
	conversionID string,
	amount decimal.Decimal,
	contractAddress string,
	chainID int64,
) (string, error) {
	digest := crypto.Keccak256Hash(
		[]byte(kind),
		common.HexToAddress(userAddress).Bytes(),
		[]byte(conversionID),
		u256(amount.BigInt()),
		common.HexToAddress(contractAddress).Bytes(),
		u256(big.NewInt(chainID)),
	)

	sig, err := crypto.Sign(prefixedHash(digest).Bytes(), a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s authorization: %w", kind, err)
	}

	// Contract-side ecrecover expects v in {27, 28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// verifySigner recovers the signer of the prefixed digest and compares it to
// the expected address.
func (a *Authority) verifySigner(digest common.Hash, signature, expected string) error {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return apperrors.BadRequestError(fmt.Errorf("%w: %v", ErrMalformedSignature, err),
			apperrors.CodeInvalidSignatureFormat, "signature is not valid hex")
	}
	if len(sigBytes) != crypto.SignatureLength {
		return apperrors.BadRequestError(
			fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, crypto.SignatureLength, len(sigBytes)),
			apperrors.CodeInvalidSignatureFormat, "signature has invalid length")
	}

	// v can be 0, 1, 27, or 28 - normalize to 0 or 1
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.SigToPub(prefixedHash(digest).Bytes(), sigBytes)
	if err != nil {
		return apperrors.BadRequestError(fmt.Errorf("%w: %v", ErrMalformedSignature, err),
			apperrors.CodeInvalidSignatureFormat, "signature is not recoverable")
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	if recovered != common.HexToAddress(expected) {
		a.logger.Info("Signature recovered to unexpected address",
			zap.String("recovered", recovered.Hex()),
			zap.String("expected", expected))
		return apperrors.BadRequestError(ErrIncorrectSignature,
			apperrors.CodeIncorrectSignature, "incorrect request signature")
	}
	return nil
}

// requestDigest is the deterministic encoding of a conversion request: the
// client signs exactly this message.
func requestDigest(req Request) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(req.TokenPairID),
		u256(req.Amount.BigInt()),
		[]byte(req.FromAddress),
		[]byte(req.ToAddress),
		u256(new(big.Int).SetUint64(req.BlockNumber)),
		u256(big.NewInt(req.ChainID)),
	)
}

// claimDigest is the deterministic encoding of a claim request.
func claimDigest(claim Claim) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(claim.ConversionID),
		u256(claim.Amount.BigInt()),
		[]byte(claim.FromAddress),
		[]byte(claim.ToAddress),
		u256(big.NewInt(claim.ChainID)),
	)
}

// prefixedHash applies the EIP-191 personal-sign prefix over a 32-byte digest.
func prefixedHash(digest common.Hash) common.Hash {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(digest))
	return crypto.Keccak256Hash([]byte(prefixed), digest.Bytes())
}

// u256 left-pads an integer to the 32-byte big-endian encoding used in the
// signed message layouts.
func u256(x *big.Int) []byte {
	return common.LeftPadBytes(x.Bytes(), 32)
}
