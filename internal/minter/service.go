// Package minter implements the minting core: transaction submission and the
// status-reconciliation engine that turns unreliable on-chain and cached
// signals into a single answer per mint id.
package minter

import (
	"context"
	"errors"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"mintgate/internal/chain"
	"mintgate/internal/hintcache"
	"mintgate/internal/mintid"
)

var (
	ErrNotDeployed   = errors.New("minter contract is not deployed")
	ErrInvalidAmount = errors.New("token amount must be a non-negative integer")
)

// Config carries the reconciliation and gas parameters.
type Config struct {
	// RequireConfirmations is the depth N a processed id must reach before
	// it is reported minted. Zero disables depth tracking entirely.
	RequireConfirmations uint64
	// GasLimitCap bounds the gas limit of mint transactions. Zero means
	// only the block-derived cap applies.
	GasLimitCap uint64
	// DeployBlock is the height the contract was deployed at; historical
	// processed-id reads below it are pointless and skipped.
	DeployBlock uint64
	// AnchorTTL bounds how long a first-seen confirmation anchor is kept.
	AnchorTTL time.Duration
	// OnCacheDegraded, when set, is invoked for every hint-cache operation
	// that failed and was degraded to a no-op.
	OnCacheDegraded func(op string)
}

// Service is stateless and safe for concurrent use: all authoritative state
// lives on chain and every cache operation is single-key.
type Service struct {
	ledger   chain.Ledger
	contract chain.MinterContract
	cache    hintcache.Store
	cfg      Config
}

// NewService wires a minting service. contract may be nil when the minter
// contract has not been deployed yet; operations then fail with ErrNotDeployed.
func NewService(ledger chain.Ledger, contract chain.MinterContract, cache hintcache.Store, cfg Config) *Service {
	return &Service{ledger: ledger, contract: contract, cache: cache, cfg: cfg}
}

// Mint submits a mint transaction for the caller-supplied request key and
// returns its hash. Re-submitting the same key is safe: the contract is
// idempotent on the derived mint id.
func (s *Service) Mint(ctx context.Context, key string, to common.Address, amount *big.Int) (common.Hash, error) {
	if s.contract == nil {
		return common.Hash{}, ErrNotDeployed
	}
	id, err := mintid.FromString(key)
	if err != nil {
		return common.Hash{}, err
	}
	if amount == nil || amount.Sign() < 0 {
		return common.Hash{}, ErrInvalidAmount
	}

	gasPrice, err := s.ledger.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	gasLimit, err := s.gasLimit(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	txHash, err := s.contract.Mint(ctx, id, to, amount, gasPrice, gasLimit)
	if err != nil {
		return common.Hash{}, err
	}

	// Remember the hash for status lookups. Optional: losing it only costs
	// reconciliation precision, never the submission.
	s.silently(ctx, "push hint", func(ctx context.Context) error {
		return s.cache.PushHint(ctx, s.hintKey(id), txHash)
	})

	log.Printf("mint: mint_id=%s to=%s amount=%s gas_price=%s gas=%d: sent tx %s",
		id, to.Hex(), amount, gasPrice, gasLimit, txHash.Hex())
	return txHash, nil
}

// Status reconciles the current state of a mint request. Read path only; the
// single side effect is best-effort hint bookkeeping in the cache.
func (s *Service) Status(ctx context.Context, key string) (Status, error) {
	if s.contract == nil {
		return Status{}, ErrNotDeployed
	}
	id, err := mintid.FromString(key)
	if err != nil {
		return Status{}, err
	}

	// Step 1: authoritative check at the confirmed height.
	st, done, err := s.confirmedStatus(ctx, id)
	if err != nil {
		return Status{}, err
	}
	if done {
		return st, nil
	}

	// Step 2: mined at head but confirmations still accruing.
	requireConfirmations := s.cfg.RequireConfirmations
	if requireConfirmations > 0 {
		processed, err := s.contract.Processed(ctx, id)
		if err != nil {
			return Status{}, err
		}
		if processed {
			return s.confirmationProgress(ctx, id)
		}
	}

	// Step 3: no contract-side evidence; inspect recorded transactions.
	var sawHint bool
	for _, txHash := range s.hints(ctx, id) {
		_, pending, err := s.ledger.TransactionByHash(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			continue
		}
		if err != nil {
			return Status{}, err
		}
		sawHint = true
		if pending {
			continue
		}

		receipt, err := s.ledger.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			continue // mined then orphaned by a reorg
		}
		if err != nil {
			return Status{}, err
		}
		if receipt.Status == types.ReceiptStatusFailed {
			// A reverted mint outranks any still-pending attempt: the
			// contract tolerates re-mints of the same id, so a revert
			// means something is structurally wrong.
			return Status{State: StateFailed}, nil
		}
	}

	// Step 4: at least one attempt is alive, just not mined far enough.
	if sawHint {
		return minting(0, int64(requireConfirmations)), nil
	}

	// Step 5: no usable hints. Distinguish "out of date" from "never happened".
	syncing, err := s.ledger.Syncing(ctx)
	if err != nil {
		return Status{}, err
	}
	if syncing {
		return Status{State: StateNodeSyncing}, nil
	}
	return Status{State: StateNotMinted}, nil
}

// confirmedStatus runs the confirmed-authoritative check. done reports
// whether the returned status is final for this query.
func (s *Service) confirmedStatus(ctx context.Context, id mintid.ID) (Status, bool, error) {
	requireConfirmations := s.cfg.RequireConfirmations
	if requireConfirmations == 0 {
		// No depth requirement: the head state alone decides minted.
		processed, err := s.contract.Processed(ctx, id)
		if err != nil {
			return Status{}, false, err
		}
		if processed {
			s.dropHints(ctx, id)
			return Status{State: StateMinted}, true, nil
		}
		return Status{}, false, nil
	}

	pinned, ok := s.contract.(chain.PinnedReader)
	if !ok {
		// The backend cannot pin reads to a height; confirmation depth is
		// advisory only and the head checks decide.
		return Status{}, false, nil
	}

	head, err := s.ledger.BlockNumber(ctx)
	if err != nil {
		return Status{}, false, err
	}
	if head < requireConfirmations {
		// The chain itself is younger than the requirement; absence of
		// data here means nothing.
		return Status{State: StateMinting}, true, nil
	}
	confirmedBlock := head - requireConfirmations
	if s.cfg.DeployBlock >= confirmedBlock {
		// The contract did not exist at the confirmed height; a read
		// there could never show the id processed.
		return Status{State: StateMinting}, true, nil
	}

	processed, err := pinned.ProcessedAt(ctx, id, confirmedBlock)
	if err != nil {
		return Status{}, false, err
	}
	if processed {
		s.dropHints(ctx, id)
		return Status{State: StateMinted}, true, nil
	}
	return Status{}, false, nil
}

// confirmationProgress computes how far a head-processed id is from the
// required depth, anchored at the block where it was first seen processed.
func (s *Service) confirmationProgress(ctx context.Context, id mintid.ID) (Status, error) {
	head, err := s.ledger.BlockNumber(ctx)
	if err != nil {
		return Status{}, err
	}

	anchor := head
	key := s.anchorKey(id)
	block, ok, err := s.cache.Anchor(ctx, key)
	if err != nil {
		s.degraded("get anchor", err)
	} else if ok {
		anchor = block
	} else {
		// First observation: pin the anchor so confirmations count up
		// monotonically across polls. Never overwritten while it lives.
		s.silently(ctx, "set anchor", func(ctx context.Context) error {
			return s.cache.SetAnchor(ctx, key, head, s.anchorTTL())
		})
	}

	confirmations := int64(head) - int64(anchor)
	rest := int64(s.cfg.RequireConfirmations) - confirmations
	return minting(confirmations, rest), nil
}

func (s *Service) gasLimit(ctx context.Context) (uint64, error) {
	// Gas limits flirting with the block limit have been seen to get
	// transactions silently dropped by some nodes; 90% of the latest
	// block's limit is the safe cap.
	blockLimit, err := s.ledger.LatestGasLimit(ctx)
	if err != nil {
		return 0, err
	}
	limit := blockLimit / 10 * 9
	if s.cfg.GasLimitCap > 0 && s.cfg.GasLimitCap < limit {
		limit = s.cfg.GasLimitCap
	}
	return limit, nil
}

// hintKey scopes cache entries to this contract instance, so a redeploy
// never reads stale hints from the previous one.
func (s *Service) hintKey(id mintid.ID) []byte {
	return crypto.Keccak256(s.contract.Address().Bytes(), id.Bytes())
}

const anchorKeyPrefix = "bh"

func (s *Service) anchorKey(id mintid.ID) []byte {
	return append([]byte(anchorKeyPrefix), s.hintKey(id)...)
}

func (s *Service) anchorTTL() time.Duration {
	if s.cfg.AnchorTTL > 0 {
		return s.cfg.AnchorTTL
	}
	return time.Hour
}

func (s *Service) hints(ctx context.Context, id mintid.ID) []common.Hash {
	hints, err := s.cache.Hints(ctx, s.hintKey(id))
	if err != nil {
		s.degraded("list hints", err)
		return nil
	}
	return hints
}

func (s *Service) dropHints(ctx context.Context, id mintid.ID) {
	s.silently(ctx, "delete hints", func(ctx context.Context) error {
		return s.cache.DeleteHints(ctx, s.hintKey(id))
	})
}

// silently runs a cache operation and degrades any failure to a log line.
func (s *Service) silently(ctx context.Context, op string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		s.degraded(op, err)
	}
}

func (s *Service) degraded(op string, err error) {
	log.Printf("hint cache degraded (%s): %v", op, err)
	if s.cfg.OnCacheDegraded != nil {
		s.cfg.OnCacheDegraded(op)
	}
}
