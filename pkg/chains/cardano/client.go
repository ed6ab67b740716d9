// Package cardano reads conversion evidence from the UTXO chain through an
// indexer API: transaction outputs and the metadata entries that carry the
// conversion identifier.
package cardano

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	"github.com/openbridge/converter-core/pkg/config"
)

const txHashLength = 32

var ErrMalformedTransactionHash = errors.New("malformed transaction hash")

// AssetAmount is one asset quantity inside a transaction output.
type AssetAmount struct {
	Unit     string          `json:"unit"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Output is one transaction output.
type Output struct {
	Address string        `json:"address"`
	Amounts []AssetAmount `json:"amount"`
}

// MetadataEntry is one labeled metadata attachment on a transaction.
type MetadataEntry struct {
	Label string          `json:"label"`
	Value json.RawMessage `json:"json_metadata"`
}

// Transaction is the evidence-relevant view of one on-chain transaction.
type Transaction struct {
	Hash     string
	Outputs  []Output
	Metadata []MetadataEntry
}

// Client represents a Cardano indexer client
type Client struct {
	config     *config.CardanoConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Cardano indexer client
func NewClient(cfg *config.CardanoConfig, logger *zap.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Transaction fetches the outputs and metadata of a transaction. Malformed
// hashes, unknown hashes and indexer failures are reported as distinct errors.
func (c *Client) Transaction(ctx context.Context, txHash string) (*Transaction, error) {
	if raw, err := hex.DecodeString(txHash); err != nil || len(raw) != txHashLength {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("%w: %q", ErrMalformedTransactionHash, txHash),
			apperrors.CodeMalformedTransactionHash, "transaction hash is not a valid hash")
	}

	var utxos struct {
		Outputs []Output `json:"outputs"`
	}
	if err := c.get(ctx, fmt.Sprintf("/txs/%s/utxos", txHash), &utxos); err != nil {
		return nil, err
	}

	// Metadata is a separate resource; a transaction without any is served
	// as an empty list, not a 404.
	var metadata []MetadataEntry
	if err := c.get(ctx, fmt.Sprintf("/txs/%s/metadata", txHash), &metadata); err != nil {
		return nil, err
	}

	return &Transaction{
		Hash:     txHash,
		Outputs:  utxos.Outputs,
		Metadata: metadata,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.IndexerURL+path, nil)
	if err != nil {
		return apperrors.DependencyError(fmt.Errorf("failed to create indexer request: %w", err))
	}
	if c.config.ProjectKey != "" {
		req.Header.Set("project_id", c.config.ProjectKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.DependencyError(fmt.Errorf("indexer request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.BadRequestError(fmt.Errorf("indexer has no record of %s", path),
			apperrors.CodeTransactionNotFound, "transaction hash is not found")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.DependencyError(
			fmt.Errorf("indexer returned %d for %s: %s", resp.StatusCode, path, body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.DependencyError(fmt.Errorf("failed to decode indexer response: %w", err))
	}
	return nil
}
