package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mintgate/internal/chain"
	"mintgate/internal/config"
	"mintgate/internal/hintcache"
	"mintgate/internal/minter"
	"mintgate/internal/server"
	"mintgate/internal/statefile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Shared lock: the service only reads the bootstrap record, and the
	// admin CLI's exclusive lock must keep it out while writing.
	state, err := statefile.Open(cfg.File.DataDirectory, true)
	if err != nil {
		log.Fatalf("state error: %v", err)
	}
	defer state.Close()

	account, err := state.Account()
	if err != nil {
		log.Fatalf("account was not initialized; run minterctl init-account first")
	}

	contractAddr, deployBlock, err := state.Contract()
	if err != nil {
		log.Printf("contract was not deployed yet; minting disabled until minterctl deploy-contract is run")
	}

	ctx := context.Background()
	eth, err := chain.NewEthClient(ctx, chain.EthClientConfig{
		RPCURL:          cfg.RPCURL,
		PrivateKeyHex:   account.Secret,
		ContractAddress: contractAddr,
	})
	if err != nil {
		log.Fatalf("chain client error: %v", err)
	}

	var cache hintcache.Store = hintcache.NewMemoryStore()
	if dsn := cfg.File.Cache.PostgresDSN; dsn != "" {
		pg, err := hintcache.NewPostgresStore(ctx, dsn)
		if err != nil {
			log.Fatalf("hint cache error: %v", err)
		}
		defer pg.Close()
		cache = pg
	}

	var contract chain.MinterContract
	if contractAddr != "" {
		contract = eth
	}

	var apiServer *server.Server
	svc := minter.NewService(eth, contract, cache, minter.Config{
		RequireConfirmations: cfg.File.RequireConfirmations,
		GasLimitCap:          cfg.File.GasLimit,
		DeployBlock:          deployBlock,
		AnchorTTL:            cfg.AnchorTTL,
		OnCacheDegraded: func(op string) {
			if apiServer != nil {
				apiServer.CacheDegraded(op)
			}
		},
	})
	apiServer = server.NewServer(cfg.HTTPPort, svc, eth, cache)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}
