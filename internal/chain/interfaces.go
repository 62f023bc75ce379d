package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"mintgate/internal/mintid"
)

// Ledger abstracts the node-level reads and lookups the minting flows need.
// Every method is a network call and honors the passed context.
type Ledger interface {
	BlockNumber(ctx context.Context) (uint64, error)
	// LatestGasLimit reports the gas limit of the most recent block.
	LatestGasLimit(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// Syncing reports whether the node is still catching up with the network.
	Syncing(ctx context.Context) (bool, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, pending bool, err error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// MinterContract is the deployed minter contract as seen by the service:
// one idempotent write entry point plus the processed-id mapping read.
type MinterContract interface {
	Address() common.Address
	Mint(ctx context.Context, id mintid.ID, to common.Address, amount *big.Int, gasPrice *big.Int, gasLimit uint64) (common.Hash, error)
	// Processed reads m_processed_mint_id at the current head.
	Processed(ctx context.Context, id mintid.ID) (bool, error)
}

// PinnedReader is implemented by contract clients whose backend supports
// per-call block pinning. Reconciliation uses it for the confirmed-depth
// check; without it confirmation depth is advisory only.
type PinnedReader interface {
	ProcessedAt(ctx context.Context, id mintid.ID, block uint64) (bool, error)
}

// HealthChecker is implemented by clients that can probe node reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
