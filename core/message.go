package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/raid-guild/erc20-paymaster-go/types"
)

// sponsorshipPrimaryType is the EIP-712 primary type signed by the verifier.
const sponsorshipPrimaryType = "SponsorshipAuthorization"

// Domain identifies the paymaster in EIP-712 authorization messages.
type Domain struct {
	Name      string
	Version   string
	ChainID   int64
	Paymaster common.Address
}

// AuthorizationParams are the request fields bound into an authorization message.
type AuthorizationParams struct {
	Token      common.Address
	Payer      common.Address
	Expiration int64
}

// AuthorizationMessage derives the message the verifier signs for a sponsorship.
func AuthorizationMessage(scheme types.AuthScheme, d Domain, p AuthorizationParams) (common.Hash, error) {
	switch scheme {
	case types.AuthSchemeTokenOnly:
		// keccak256(abi.encodePacked(address token))
		return crypto.Keccak256Hash(p.Token.Bytes()), nil

	case types.AuthSchemeEIP712:
		return typedAuthorizationHash(d, p)

	default:
		return common.Hash{}, fmt.Errorf("unsupported authorization scheme %q", scheme)
	}
}

// SigningDigest returns the 32 bytes the verifier key actually signs for a message.
func SigningDigest(scheme types.AuthScheme, message common.Hash) []byte {

	// The token only scheme signs the hash as an EIP-191 personal message
	if scheme == types.AuthSchemeTokenOnly {
		return accounts.TextHash(message.Bytes())
	}

	// The typed data hash is already a final digest
	return message.Bytes()
}

// typedAuthorizationHash computes the EIP-712 digest of a sponsorship authorization.
func typedAuthorizationHash(d Domain, p AuthorizationParams) (common.Hash, error) {

	// Convert the chain ID to hex or decimal
	bigChainID := big.NewInt(d.ChainID)
	hexChainID := math.HexOrDecimal256(*bigChainID)

	// Construct the typed data
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			sponsorshipPrimaryType: []apitypes.Type{
				{Name: "token", Type: "address"},
				{Name: "payer", Type: "address"},
				{Name: "expiration", Type: "uint256"},
			},
		},
		PrimaryType: sponsorshipPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           &hexChainID,
			VerifyingContract: d.Paymaster.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"token":      p.Token.Hex(),
			"payer":      p.Payer.Hex(),
			"expiration": big.NewInt(p.Expiration),
		},
	}

	// Compute the domain hash
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data domain: %v", err)
	}

	// Compute the message hash
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data message: %v", err)
	}

	// Construct the signature hash
	rawData := append(append([]byte("\x19\x01"), domainSeparator...), typedDataHash...)
	return crypto.Keccak256Hash(rawData), nil
}
