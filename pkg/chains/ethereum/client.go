// Package ethereum reads conversion evidence from the account-based chain: the
// current head block and the ConversionOut/ConversionIn events a transaction
// emitted against the bridge token contract.
package ethereum

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	"github.com/openbridge/converter-core/pkg/config"
)

// conversionEventsABI covers the two bridge contract events the settlement
// core reconciles evidence against.
const conversionEventsABI = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"tokenHolder","type":"address"},
    {"indexed":false,"internalType":"bytes32","name":"conversionId","type":"bytes32"},
    {"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],
   "name":"ConversionOut","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"tokenHolder","type":"address"},
    {"indexed":false,"internalType":"bytes32","name":"conversionId","type":"bytes32"},
    {"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],
   "name":"ConversionIn","type":"event"}
]`

var ErrMalformedTransactionHash = errors.New("malformed transaction hash")

// ConversionEvent is one decoded bridge contract event.
type ConversionEvent struct {
	Name            string
	TokenHolder     string
	ConversionID    string
	Amount          decimal.Decimal
	ContractAddress string
}

// Client represents an Ethereum evidence client
type Client struct {
	config *config.EthereumConfig
	client *ethclient.Client
	abi    abi.ABI
	logger *zap.Logger
}

// NewClient creates a new Ethereum evidence client
func NewClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(conversionEventsABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse conversion events ABI: %w", err)
	}

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL))

	return &Client{
		config: cfg,
		client: client,
		abi:    parsed,
		logger: logger,
	}, nil
}

// Close closes the Ethereum client
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// HeadBlock gets the latest block number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// ConversionEvents fetches the receipt of a transaction and decodes the
// ConversionOut/ConversionIn events it emitted, tagged with the emitting
// contract address. Malformed hashes, unknown hashes and RPC failures are
// reported as distinct errors.
func (c *Client) ConversionEvents(ctx context.Context, txHash string) ([]ConversionEvent, error) {
	hash, err := parseTxHash(txHash)
	if err != nil {
		return nil, apperrors.BadRequestError(err,
			apperrors.CodeMalformedTransactionHash, "transaction hash is not a valid hash")
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, goethereum.NotFound) {
			return nil, apperrors.BadRequestError(err,
				apperrors.CodeTransactionNotFound, "transaction hash is not found")
		}
		return nil, apperrors.DependencyError(fmt.Errorf("failed to fetch receipt for %s: %w", txHash, err))
	}

	events := make([]ConversionEvent, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		ev, ok, err := c.decodeLog(log)
		if err != nil {
			return nil, apperrors.DependencyError(fmt.Errorf("failed to decode log in %s: %w", txHash, err))
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (c *Client) decodeLog(log *types.Log) (ConversionEvent, bool, error) {
	if len(log.Topics) < 2 {
		return ConversionEvent{}, false, nil
	}

	event, err := c.abi.EventByID(log.Topics[0])
	if err != nil {
		// Not a bridge event, skip.
		return ConversionEvent{}, false, nil
	}

	var args struct {
		ConversionId [32]byte
		Amount       *big.Int
	}
	if err := c.abi.UnpackIntoInterface(&args, event.Name, log.Data); err != nil {
		return ConversionEvent{}, false, err
	}

	return ConversionEvent{
		Name:            event.Name,
		TokenHolder:     common.HexToAddress(log.Topics[1].Hex()).Hex(),
		ConversionID:    string(bytes.TrimRight(args.ConversionId[:], "\x00")),
		Amount:          decimal.NewFromBigInt(args.Amount, 0),
		ContractAddress: log.Address.Hex(),
	}, true, nil
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.config.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func parseTxHash(txHash string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(txHash, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrMalformedTransactionHash, txHash)
	}
	return common.BytesToHash(raw), nil
}
