package worker

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

const (
	domainName    = "PowerloomProtocolContract"
	domainVersion = "0.1"
	primaryType   = "EIPRequest"
)

var requestTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: {
		{Name: "slotId", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "snapshotCid", Type: "string"},
		{Name: "epochId", Type: "uint256"},
		{Name: "projectId", Type: "string"},
	},
}

// Signer produces EIP-712 signatures over snapshot requests.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key, with or without 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the signer account.
func (s *Signer) Address() common.Address {
	return s.address
}

// Digest returns the EIP-712 hash of req under the protocol domain.
func Digest(req domain.SnapshotRequest, chainID *big.Int, verifyingContract common.Address) ([]byte, error) {
	typed := apitypes.TypedData{
		Types:       requestTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"slotId":      strconv.FormatUint(req.SlotID, 10),
			"deadline":    strconv.FormatUint(req.Deadline, 10),
			"snapshotCid": req.SnapshotCID,
			"epochId":     strconv.FormatUint(req.EpochID, 10),
			"projectId":   req.ProjectID,
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// Sign returns the 65 byte r||s||v signature as hex without prefix, v in {27, 28}.
func (s *Signer) Sign(req domain.SnapshotRequest, chainID *big.Int, verifyingContract common.Address) (string, error) {
	digest, err := Digest(req, chainID, verifyingContract)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hex.EncodeToString(sig), nil
}
