// Package bootstrap holds the single-shot administrative flows run by the
// operator CLI: minting-account creation, minter-contract deployment and
// leftover-ether recovery. Each flow runs under the exclusive state lock and
// is never retried.
package bootstrap

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"mintgate/internal/chain"
	"mintgate/internal/contracts"
	"mintgate/internal/statefile"
)

var ErrAccountExists = errors.New("account is already initialized")

// Flows bundles the administrative operations.
type Flows struct {
	rpcURL       string
	contractsDir string
}

func New(rpcURL, contractsDir string) *Flows {
	return &Flows{rpcURL: rpcURL, contractsDir: contractsDir}
}

// InitAccount generates a fresh minting key and records it in the state.
// Purely local; funding the account is the operator's next step.
func (f *Flows) InitAccount(st *statefile.State) (common.Address, error) {
	if _, err := st.Account(); err == nil {
		return common.Address{}, ErrAccountExists
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("generate key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	st.SetAccount(statefile.Account{
		Address: addr.Hex(),
		Secret:  hex.EncodeToString(crypto.FromECDSA(key)),
	})
	if err := st.Save(); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// DeployContract deploys ReenterableMinter for the given token and records
// the contract address plus its deployment block.
func (f *Flows) DeployContract(ctx context.Context, st *statefile.State, tokenAddress common.Address) (common.Address, error) {
	acct, err := st.Account()
	if err != nil {
		return common.Address{}, err
	}

	client, err := ethclient.DialContext(ctx, f.rpcURL)
	if err != nil {
		return common.Address{}, fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	opts, err := f.transactor(ctx, client, acct.Secret)
	if err != nil {
		return common.Address{}, err
	}

	artifact, err := contracts.LoadArtifact(f.contractsDir, "ReenterableMinter")
	if err != nil {
		return common.Address{}, err
	}
	parsedABI, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse artifact abi: %w", err)
	}
	bin, err := artifact.Bin()
	if err != nil {
		return common.Address{}, err
	}

	addr, tx, _, err := bind.DeployContract(opts, parsedABI, common.FromHex(bin), client, tokenAddress)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy: %w", err)
	}
	log.Printf("deploy_contract: token=%s gas_price=%s gas=%d: sent tx %s",
		tokenAddress.Hex(), opts.GasPrice, opts.GasLimit, tx.Hash().Hex())

	receipt, err := chain.WaitForReceipt(ctx, client, tx.Hash())
	if err != nil {
		return common.Address{}, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return common.Address{}, fmt.Errorf("deployment tx %s reverted", tx.Hash().Hex())
	}

	st.SetContract(addr.Hex(), receipt.BlockNumber.Uint64())
	if err := st.Save(); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

const recoverGasLimit = 50_000

// RecoverEther drains the minting account to target once minting is
// retired. Returns nil when the balance cannot cover the transfer fee.
func (f *Flows) RecoverEther(ctx context.Context, st *statefile.State, target common.Address) (*common.Hash, error) {
	acct, err := st.Account()
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, f.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	key, err := chain.ParsePrivateKey(acct.Secret)
	if err != nil {
		return nil, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	balance, err := client.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, err
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	fee := new(big.Int).Mul(gasPrice, big.NewInt(recoverGasLimit))
	value := new(big.Int).Sub(balance, fee)
	if value.Sign() <= 0 {
		return nil, nil
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &target,
		Value:    value,
		Gas:      recoverGasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	log.Printf("recover_ether: from=%s to=%s value=%s: sent tx %s",
		from.Hex(), target.Hex(), value, signed.Hash().Hex())

	if _, err := chain.WaitForReceipt(ctx, client, signed.Hash()); err != nil {
		return nil, err
	}
	hash := signed.Hash()
	return &hash, nil
}

// transactor builds signing options with the submit-path gas policy.
func (f *Flows) transactor(ctx context.Context, client *ethclient.Client, secretHex string) (*bind.TransactOpts, error) {
	key, err := chain.ParsePrivateKey(secretHex)
	if err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	opts.GasPrice = gasPrice
	opts.GasLimit = header.GasLimit / 10 * 9
	return opts, nil
}
