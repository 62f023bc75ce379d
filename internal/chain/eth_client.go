package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"mintgate/internal/contracts"
	"mintgate/internal/mintid"
)

// EthClient talks to an Ethereum node and the deployed ReenterableMinter.
// It implements Ledger, MinterContract, PinnedReader and HealthChecker.
type EthClient struct {
	client    *ethclient.Client
	contract  *bind.BoundContract
	abi       abi.ABI
	address   common.Address
	chainID   *big.Int
	transacts *bind.TransactOpts
}

type EthClientConfig struct {
	RPCURL        string
	PrivateKeyHex string
	// ContractAddress may be empty for ledger-only use (no contract deployed yet).
	ContractAddress string
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	ec := &EthClient{client: cli}

	if cfg.ContractAddress != "" {
		parsedABI, err := abi.JSON(strings.NewReader(contracts.ReenterableMinterABI))
		if err != nil {
			return nil, fmt.Errorf("parse abi: %w", err)
		}
		ec.abi = parsedABI
		ec.address = common.HexToAddress(cfg.ContractAddress)
		ec.contract = bind.NewBoundContract(ec.address, parsedABI, cli, cli, cli)
	}

	if cfg.PrivateKeyHex != "" {
		pk, err := ParsePrivateKey(cfg.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		chainID, err := cli.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
		txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
		if err != nil {
			return nil, fmt.Errorf("transactor: %w", err)
		}
		ec.chainID = chainID
		ec.transacts = txOpts
	}

	return ec, nil
}

func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *EthClient) Raw() *ethclient.Client { return c.client }

func (c *EthClient) Address() common.Address { return c.address }

func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

func (c *EthClient) LatestGasLimit(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("latest header: %w", err)
	}
	return header.GasLimit, nil
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.client.SuggestGasPrice(ctx)
}

func (c *EthClient) Syncing(ctx context.Context) (bool, error) {
	progress, err := c.client.SyncProgress(ctx)
	if err != nil {
		return false, err
	}
	return progress != nil, nil
}

func (c *EthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return c.client.TransactionByHash(ctx, hash)
}

func (c *EthClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.client.TransactionReceipt(ctx, hash)
}

func (c *EthClient) Mint(ctx context.Context, id mintid.ID, to common.Address, amount, gasPrice *big.Int, gasLimit uint64) (common.Hash, error) {
	if c.contract == nil {
		return common.Hash{}, fmt.Errorf("contract address not configured")
	}
	if c.transacts == nil {
		return common.Hash{}, fmt.Errorf("client is read-only")
	}

	opts := *c.transacts
	opts.Context = ctx
	opts.GasPrice = gasPrice
	opts.GasLimit = gasLimit

	tx, err := c.contract.Transact(&opts, "mint", [32]byte(id), to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("mint tx: %w", err)
	}
	return tx.Hash(), nil
}

func (c *EthClient) Processed(ctx context.Context, id mintid.ID) (bool, error) {
	return c.processed(ctx, id, nil)
}

func (c *EthClient) ProcessedAt(ctx context.Context, id mintid.ID, block uint64) (bool, error) {
	return c.processed(ctx, id, new(big.Int).SetUint64(block))
}

func (c *EthClient) processed(ctx context.Context, id mintid.ID, block *big.Int) (bool, error) {
	if c.contract == nil {
		return false, fmt.Errorf("contract address not configured")
	}

	opts := &bind.CallOpts{Context: ctx, BlockNumber: block}
	var out []interface{}
	if err := c.contract.Call(opts, &out, "m_processed_mint_id", [32]byte(id)); err != nil {
		return false, fmt.Errorf("m_processed_mint_id: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("m_processed_mint_id: unexpected result arity %d", len(out))
	}
	processed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("m_processed_mint_id: unexpected result type %T", out[0])
	}
	return processed, nil
}

// Token reads the minted token's address from the contract.
func (c *EthClient) Token(ctx context.Context) (common.Address, error) {
	if c.contract == nil {
		return common.Address{}, fmt.Errorf("contract address not configured")
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "m_token"); err != nil {
		return common.Address{}, fmt.Errorf("m_token: %w", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("m_token: unexpected result type %T", out[0])
	}
	return addr, nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	_, err := c.client.BlockNumber(ctx)
	return err
}
