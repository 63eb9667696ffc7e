package clients

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// latestAnswerJSON is the raw JSON ABI for a Chainlink style latestAnswer.
const latestAnswerJSON = `[{
	"type": "function",
	"name": "latestAnswer",
	"inputs": [],
	"outputs": [
		{"name": "", "type": "int256"}
	],
	"stateMutability": "view"
}]`

// PriceOracle reads a token-per-wei exchange rate from an on-chain price feed.
type PriceOracle struct {
	client  EthClientInterface
	address common.Address
	abi     abi.ABI
}

// NewPriceOracle creates a price oracle reader for the feed at address.
func NewPriceOracle(client EthClientInterface, address common.Address) (*PriceOracle, error) {

	// Parse the feed ABI for latestAnswer
	feedABI, err := abi.JSON(strings.NewReader(latestAnswerJSON))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse latestAnswer ABI")
	}

	return &PriceOracle{
		client:  client,
		address: address,
		abi:     feedABI,
	}, nil
}

// Rate returns the latest answer reported by the feed.
func (o *PriceOracle) Rate(ctx context.Context) (*big.Int, error) {

	// Pack the latestAnswer call data
	data, err := o.abi.Pack("latestAnswer")
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack latestAnswer call data")
	}

	// Call the feed contract
	result, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call price oracle")
	}

	// Unpack the int256 answer
	values, err := o.abi.Unpack("latestAnswer", result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack latestAnswer result")
	}
	if len(values) != 1 {
		return nil, errors.Errorf("unexpected latestAnswer result length %d", len(values))
	}
	answer, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.New("latestAnswer result is not an integer")
	}

	// Verify the answer is positive
	if answer.Sign() <= 0 {
		return nil, errors.Errorf("price oracle returned non-positive answer %s", answer)
	}

	return answer, nil
}
