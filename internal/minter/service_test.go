package minter

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"mintgate/internal/hintcache"
	"mintgate/internal/mintid"
)

type stubTx struct {
	pending bool
	receipt *types.Receipt // nil means receipt lookup returns not found
}

type stubLedger struct {
	head     uint64
	gasLimit uint64
	gasPrice *big.Int
	syncing  bool
	txs      map[common.Hash]stubTx
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		head:     1000,
		gasLimit: 8_000_000,
		gasPrice: big.NewInt(1_000_000_000),
		txs:      make(map[common.Hash]stubTx),
	}
}

func (l *stubLedger) BlockNumber(context.Context) (uint64, error)      { return l.head, nil }
func (l *stubLedger) LatestGasLimit(context.Context) (uint64, error)   { return l.gasLimit, nil }
func (l *stubLedger) SuggestGasPrice(context.Context) (*big.Int, error) { return l.gasPrice, nil }
func (l *stubLedger) Syncing(context.Context) (bool, error)            { return l.syncing, nil }

func (l *stubLedger) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	entry, ok := l.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return types.NewTx(&types.LegacyTx{}), entry.pending, nil
}

func (l *stubLedger) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	entry, ok := l.txs[hash]
	if !ok || entry.receipt == nil {
		return nil, ethereum.NotFound
	}
	return entry.receipt, nil
}

type mintCall struct {
	id       mintid.ID
	to       common.Address
	amount   *big.Int
	gasPrice *big.Int
	gasLimit uint64
}

type stubContract struct {
	addr            common.Address
	nextHash        common.Hash
	mintErr         error
	calls           []mintCall
	headProcessed   map[mintid.ID]bool
	pinnedProcessed map[mintid.ID]bool
}

func newStubContract() *stubContract {
	return &stubContract{
		addr:            common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		nextHash:        common.HexToHash("0x01"),
		headProcessed:   make(map[mintid.ID]bool),
		pinnedProcessed: make(map[mintid.ID]bool),
	}
}

func (c *stubContract) Address() common.Address { return c.addr }

func (c *stubContract) Mint(_ context.Context, id mintid.ID, to common.Address, amount, gasPrice *big.Int, gasLimit uint64) (common.Hash, error) {
	if c.mintErr != nil {
		return common.Hash{}, c.mintErr
	}
	c.calls = append(c.calls, mintCall{id: id, to: to, amount: amount, gasPrice: gasPrice, gasLimit: gasLimit})
	return c.nextHash, nil
}

func (c *stubContract) Processed(_ context.Context, id mintid.ID) (bool, error) {
	return c.headProcessed[id], nil
}

func (c *stubContract) ProcessedAt(_ context.Context, id mintid.ID, _ uint64) (bool, error) {
	return c.pinnedProcessed[id], nil
}

// unpinnedContract hides ProcessedAt to exercise the capability branch.
type unpinnedContract struct {
	inner *stubContract
}

func (c unpinnedContract) Address() common.Address { return c.inner.Address() }

func (c unpinnedContract) Mint(ctx context.Context, id mintid.ID, to common.Address, amount, gasPrice *big.Int, gasLimit uint64) (common.Hash, error) {
	return c.inner.Mint(ctx, id, to, amount, gasPrice, gasLimit)
}

func (c unpinnedContract) Processed(ctx context.Context, id mintid.ID) (bool, error) {
	return c.inner.Processed(ctx, id)
}

// downCache fails every operation, simulating a cache outage.
type downCache struct{}

var errCacheDown = errors.New("cache unreachable")

func (downCache) PushHint(context.Context, []byte, common.Hash) error { return errCacheDown }
func (downCache) Hints(context.Context, []byte) ([]common.Hash, error) {
	return nil, errCacheDown
}
func (downCache) DeleteHints(context.Context, []byte) error { return errCacheDown }
func (downCache) SetAnchor(context.Context, []byte, uint64, time.Duration) error {
	return errCacheDown
}
func (downCache) Anchor(context.Context, []byte) (uint64, bool, error) {
	return 0, false, errCacheDown
}

var testRecipient = common.HexToAddress("0x00000000000000000000000000000000000000bb")

func mustID(t *testing.T, key string) mintid.ID {
	t.Helper()
	id, err := mintid.FromString(key)
	if err != nil {
		t.Fatalf("derive id: %v", err)
	}
	return id
}

func TestMintGasPolicy(t *testing.T) {
	cases := []struct {
		name     string
		blockGas uint64
		cap      uint64
		want     uint64
	}{
		{"no cap", 1000, 0, 900},
		{"cap below block cap", 1000, 500, 500},
		{"cap above block cap", 1000, 2000, 900},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := newStubLedger()
			ledger.gasLimit = tc.blockGas
			contract := newStubContract()
			svc := NewService(ledger, contract, hintcache.NewMemoryStore(), Config{GasLimitCap: tc.cap})

			if _, err := svc.Mint(context.Background(), "m1", testRecipient, big.NewInt(10)); err != nil {
				t.Fatalf("mint: %v", err)
			}
			if len(contract.calls) != 1 {
				t.Fatalf("expected one mint call, got %d", len(contract.calls))
			}
			if got := contract.calls[0].gasLimit; got != tc.want {
				t.Fatalf("gas limit: got %d want %d", got, tc.want)
			}
		})
	}
}

func TestMintRecordsHint(t *testing.T) {
	ledger := newStubLedger()
	contract := newStubContract()
	contract.nextHash = common.HexToHash("0xbeef")
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{})

	if _, err := svc.Mint(context.Background(), "m1", testRecipient, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	hints, err := cache.Hints(context.Background(), svc.hintKey(mustID(t, "m1")))
	if err != nil {
		t.Fatalf("hints: %v", err)
	}
	if len(hints) != 1 || hints[0] != contract.nextHash {
		t.Fatalf("expected recorded hint %s, got %v", contract.nextHash.Hex(), hints)
	}
}

func TestMintSucceedsWhenCacheDown(t *testing.T) {
	ledger := newStubLedger()
	contract := newStubContract()
	degraded := 0
	svc := NewService(ledger, contract, downCache{}, Config{
		OnCacheDegraded: func(string) { degraded++ },
	})

	hash, err := svc.Mint(context.Background(), "m1", testRecipient, big.NewInt(10))
	if err != nil {
		t.Fatalf("mint should survive cache outage: %v", err)
	}
	if hash != contract.nextHash {
		t.Fatalf("unexpected tx hash %s", hash.Hex())
	}
	if degraded == 0 {
		t.Fatalf("expected degraded cache operation to be reported")
	}
}

func TestMintValidation(t *testing.T) {
	svc := NewService(newStubLedger(), newStubContract(), hintcache.NewMemoryStore(), Config{})
	ctx := context.Background()

	if _, err := svc.Mint(ctx, "", testRecipient, big.NewInt(1)); !errors.Is(err, mintid.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := svc.Mint(ctx, "m1", testRecipient, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestNotDeployed(t *testing.T) {
	svc := NewService(newStubLedger(), nil, hintcache.NewMemoryStore(), Config{})
	ctx := context.Background()

	if _, err := svc.Mint(ctx, "m1", testRecipient, big.NewInt(1)); !errors.Is(err, ErrNotDeployed) {
		t.Fatalf("expected ErrNotDeployed from Mint, got %v", err)
	}
	if _, err := svc.Status(ctx, "m1"); !errors.Is(err, ErrNotDeployed) {
		t.Fatalf("expected ErrNotDeployed from Status, got %v", err)
	}
}

func TestStatusMintedWithoutConfirmationRequirement(t *testing.T) {
	ledger := newStubLedger()
	contract := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{})
	ctx := context.Background()

	id := mustID(t, "m1")
	contract.headProcessed[id] = true
	_ = cache.PushHint(ctx, svc.hintKey(id), common.HexToHash("0x01"))

	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateMinted {
		t.Fatalf("expected minted, got %s", st.State)
	}

	// Hints are cleaned up once the contract confirms processing.
	hints, _ := cache.Hints(ctx, svc.hintKey(id))
	if len(hints) != 0 {
		t.Fatalf("expected hints to be dropped, got %v", hints)
	}

	// Unrelated ids stay unaffected.
	st, err = svc.Status(ctx, "zz")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateNotMinted {
		t.Fatalf("expected not_minted for unrelated id, got %s", st.State)
	}
}

func TestStatusMintedAtConfirmedDepth(t *testing.T) {
	ledger := newStubLedger()
	ledger.head = 100
	contract := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{RequireConfirmations: 6, DeployBlock: 10})
	ctx := context.Background()

	id := mustID(t, "m1")
	contract.pinnedProcessed[id] = true
	contract.headProcessed[id] = true
	_ = cache.PushHint(ctx, svc.hintKey(id), common.HexToHash("0x01"))

	for poll := 0; poll < 3; poll++ {
		st, err := svc.Status(ctx, "m1")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.State != StateMinted {
			t.Fatalf("poll %d: expected minted to be terminal, got %s", poll, st.State)
		}
	}

	hints, _ := cache.Hints(ctx, svc.hintKey(id))
	if len(hints) != 0 {
		t.Fatalf("expected hints to be dropped, got %v", hints)
	}
}

func TestStatusMintingOnYoungChain(t *testing.T) {
	ledger := newStubLedger()
	ledger.head = 5
	svc := NewService(ledger, newStubContract(), hintcache.NewMemoryStore(), Config{RequireConfirmations: 10})

	st, err := svc.Status(context.Background(), "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateMinting {
		t.Fatalf("expected minting on a chain younger than the requirement, got %s", st.State)
	}
	if st.Confirmations != nil || st.RestConfirmations != nil {
		t.Fatalf("expected no confirmation fields, got %+v", st)
	}
}

func TestStatusMintingWhenContractTooRecent(t *testing.T) {
	ledger := newStubLedger()
	ledger.head = 100
	svc := NewService(ledger, newStubContract(), hintcache.NewMemoryStore(), Config{
		RequireConfirmations: 6,
		DeployBlock:          95, // at or above head-6
	})

	st, err := svc.Status(context.Background(), "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateMinting {
		t.Fatalf("expected minting while the contract predates no confirmed block, got %s", st.State)
	}
}

func TestStatusConfirmationProgress(t *testing.T) {
	ledger := newStubLedger()
	ledger.head = 100
	contract := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{RequireConfirmations: 6, DeployBlock: 10})
	ctx := context.Background()

	id := mustID(t, "m1")
	contract.headProcessed[id] = true // visible at head, not yet at head-6

	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateMinting || st.Confirmations == nil || *st.Confirmations != 0 {
		t.Fatalf("first poll: expected minting with 0 confirmations, got %+v", st)
	}
	if *st.RestConfirmations != 6 {
		t.Fatalf("first poll: expected 6 rest confirmations, got %d", *st.RestConfirmations)
	}

	// Three blocks later the anchor must hold and confirmations advance.
	ledger.head = 103
	st, err = svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if *st.Confirmations != 3 || *st.RestConfirmations != 3 {
		t.Fatalf("second poll: expected 3/3, got %d/%d", *st.Confirmations, *st.RestConfirmations)
	}

	// The anchor is never moved forward by later polls.
	ledger.head = 104
	st, _ = svc.Status(ctx, "m1")
	if *st.Confirmations != 4 {
		t.Fatalf("third poll: expected 4 confirmations, got %d", *st.Confirmations)
	}
}

func TestStatusConfirmationProgressWithCacheDown(t *testing.T) {
	ledger := newStubLedger()
	ledger.head = 100
	contract := newStubContract()
	svc := NewService(ledger, contract, downCache{}, Config{RequireConfirmations: 6, DeployBlock: 10})

	id := mustID(t, "m1")
	contract.headProcessed[id] = true

	// Without a reachable anchor the count restarts at zero each poll.
	st, err := svc.Status(context.Background(), "m1")
	if err != nil {
		t.Fatalf("status must not fail on cache outage: %v", err)
	}
	if st.State != StateMinting || *st.Confirmations != 0 {
		t.Fatalf("expected minting with restarted count, got %+v", st)
	}
}

func TestStatusFailedReceiptIsTerminal(t *testing.T) {
	ledger := newStubLedger()
	contract := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{RequireConfirmations: 6, DeployBlock: 10})
	ctx := context.Background()

	id := mustID(t, "m1")
	failed := common.HexToHash("0x0f")
	ledger.txs[failed] = stubTx{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	_ = cache.PushHint(ctx, svc.hintKey(id), failed)

	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateFailed {
		t.Fatalf("expected failed, got %s", st.State)
	}
}

func TestStatusFailureOutranksPendingHints(t *testing.T) {
	ledger := newStubLedger()
	contract := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{})
	ctx := context.Background()

	id := mustID(t, "m1")
	okTx := common.HexToHash("0x0a")
	pendingTx := common.HexToHash("0x0b")
	failedTx := common.HexToHash("0x0c")
	ledger.txs[okTx] = stubTx{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	ledger.txs[pendingTx] = stubTx{pending: true}
	ledger.txs[failedTx] = stubTx{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}

	// The failed attempt sits last: the scan must not stop at a success
	// or a still-pending hint.
	key := svc.hintKey(id)
	_ = cache.PushHint(ctx, key, failedTx)
	_ = cache.PushHint(ctx, key, pendingTx)
	_ = cache.PushHint(ctx, key, okTx)

	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateFailed {
		t.Fatalf("expected failure to outrank pending hints, got %s", st.State)
	}
}

func TestStatusPendingHintMeansMinting(t *testing.T) {
	ledger := newStubLedger()
	contract := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{RequireConfirmations: 4, DeployBlock: 10})
	ctx := context.Background()

	id := mustID(t, "m1")
	pendingTx := common.HexToHash("0x0b")
	ledger.txs[pendingTx] = stubTx{pending: true}
	_ = cache.PushHint(ctx, svc.hintKey(id), pendingTx)

	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateMinting {
		t.Fatalf("expected minting, got %s", st.State)
	}
	if st.Confirmations == nil || *st.Confirmations != 0 || *st.RestConfirmations != 4 {
		t.Fatalf("expected 0/4 confirmations, got %+v", st)
	}
}

func TestStatusOrphanedHintStillCountsAsAlive(t *testing.T) {
	ledger := newStubLedger()
	contract := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{})
	ctx := context.Background()

	id := mustID(t, "m1")
	orphaned := common.HexToHash("0x0d")
	// Mined according to the tx lookup, but the receipt is gone: reorg.
	ledger.txs[orphaned] = stubTx{}
	_ = cache.PushHint(ctx, svc.hintKey(id), orphaned)

	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateMinting {
		t.Fatalf("expected minting after reorg-lost receipt, got %s", st.State)
	}
}

func TestStatusNoEvidence(t *testing.T) {
	ledger := newStubLedger()
	svc := NewService(ledger, newStubContract(), hintcache.NewMemoryStore(), Config{})
	ctx := context.Background()

	ledger.syncing = true
	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateNodeSyncing {
		t.Fatalf("expected node_syncing, got %s", st.State)
	}

	ledger.syncing = false
	st, err = svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateNotMinted {
		t.Fatalf("expected not_minted, got %s", st.State)
	}
}

func TestStatusUnknownHintIsNotEvidence(t *testing.T) {
	ledger := newStubLedger()
	contract := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, contract, cache, Config{})
	ctx := context.Background()

	// The recorded hash resolves to nothing: the node never saw the tx.
	id := mustID(t, "m1")
	_ = cache.PushHint(ctx, svc.hintKey(id), common.HexToHash("0xdead"))

	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateNotMinted {
		t.Fatalf("expected not_minted for a hint the node never saw, got %s", st.State)
	}
}

func TestStatusCacheDownFallsThrough(t *testing.T) {
	ledger := newStubLedger()
	degraded := 0
	svc := NewService(ledger, newStubContract(), downCache{}, Config{
		OnCacheDegraded: func(string) { degraded++ },
	})

	st, err := svc.Status(context.Background(), "m1")
	if err != nil {
		t.Fatalf("status must not fail on cache outage: %v", err)
	}
	if st.State != StateNotMinted {
		t.Fatalf("expected not_minted, got %s", st.State)
	}
	if degraded == 0 {
		t.Fatalf("expected degraded cache operations to be reported")
	}
}

func TestStatusWithoutPinnedReadsDepthIsAdvisory(t *testing.T) {
	ledger := newStubLedger()
	ledger.head = 100
	inner := newStubContract()
	cache := hintcache.NewMemoryStore()
	svc := NewService(ledger, unpinnedContract{inner: inner}, cache, Config{
		RequireConfirmations: 6,
		DeployBlock:          10,
	})
	ctx := context.Background()

	id := mustID(t, "m1")
	inner.headProcessed[id] = true
	inner.pinnedProcessed[id] = true // must be unreachable without pinning

	// The historical check cannot run, so the head check reports progress
	// instead of ever returning minted.
	st, err := svc.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != StateMinting || st.Confirmations == nil {
		t.Fatalf("expected advisory minting progress, got %+v", st)
	}
}
