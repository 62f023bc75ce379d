// minterctl runs the single-shot administrative flows around the minting
// service:
//
//	step 1: minterctl init-account, then fund the printed address
//	step 2: minterctl deploy-contract <token_address>, then grant the
//	        deployed minter permission to mint the token
//	step 3: run minterd
//	step 4: minterctl recover-ether <address> once minting is retired
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"mintgate/internal/bootstrap"
	"mintgate/internal/config"
	"mintgate/internal/statefile"
)

func main() {
	root := &cobra.Command{
		Use:           "minterctl",
		Short:         "administer the token minting service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(initAccountCmd(), deployContractCmd(), recoverEtherCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withState loads config and runs fn under the exclusive state lock.
func withState(fn func(cfg *config.AppConfig, st *statefile.State) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := statefile.Open(cfg.File.DataDirectory, false)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

func initAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-account",
		Short: "initialize a new account to use for minting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withState(func(cfg *config.AppConfig, st *statefile.State) error {
				flows := bootstrap.New(cfg.RPCURL, cfg.File.ContractsDirectory)
				addr, err := flows.InitAccount(st)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated new account: %s\n", addr.Hex())
				return nil
			})
		},
	}
}

func deployContractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy-contract <token_address>",
		Short: "deploy the minter contract for the given token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("bad token address: %s", args[0])
			}
			return withState(func(cfg *config.AppConfig, st *statefile.State) error {
				flows := bootstrap.New(cfg.RPCURL, cfg.File.ContractsDirectory)
				addr, err := flows.DeployContract(context.Background(), st, common.HexToAddress(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ReenterableMinter deployed at: %s\n", addr.Hex())
				return nil
			})
		},
	}
}

func recoverEtherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover-ether <address>",
		Short: "send ether remaining on the minting account to the given address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("bad address: %s", args[0])
			}
			return withState(func(cfg *config.AppConfig, st *statefile.State) error {
				flows := bootstrap.New(cfg.RPCURL, cfg.File.ContractsDirectory)
				hash, err := flows.RecoverEther(context.Background(), st, common.HexToAddress(args[0]))
				if err != nil {
					return err
				}
				if hash == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing could be sent")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Mined transaction: %s\n", hash.Hex())
				return nil
			})
		},
	}
}
