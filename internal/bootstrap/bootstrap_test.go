package bootstrap

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"mintgate/internal/chain"
	"mintgate/internal/statefile"
)

func TestInitAccount(t *testing.T) {
	dir := t.TempDir()
	st, err := statefile.Open(dir, false)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	defer st.Close()

	flows := New("http://localhost:8545", "")
	addr, err := flows.InitAccount(st)
	if err != nil {
		t.Fatalf("init account: %v", err)
	}
	if addr == (common.Address{}) {
		t.Fatalf("expected a non-zero address")
	}

	acct, err := st.Account()
	if err != nil {
		t.Fatalf("account not recorded: %v", err)
	}
	if acct.Address != addr.Hex() {
		t.Fatalf("recorded address %s does not match generated %s", acct.Address, addr.Hex())
	}

	// The recorded secret must parse back to a key for the same address.
	key, err := chain.ParsePrivateKey(acct.Secret)
	if err != nil {
		t.Fatalf("recorded secret does not parse: %v", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != addr {
		t.Fatalf("secret does not match the recorded address")
	}
}

func TestInitAccountRefusesSecondRun(t *testing.T) {
	dir := t.TempDir()
	st, err := statefile.Open(dir, false)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	defer st.Close()

	flows := New("http://localhost:8545", "")
	if _, err := flows.InitAccount(st); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, err := flows.InitAccount(st); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestInitAccountSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := statefile.Open(dir, false)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	flows := New("http://localhost:8545", "")
	addr, err := flows.InitAccount(st)
	if err != nil {
		t.Fatalf("init account: %v", err)
	}
	st.Close()

	reopened, err := statefile.Open(dir, true)
	if err != nil {
		t.Fatalf("reopen state: %v", err)
	}
	defer reopened.Close()

	acct, err := reopened.Account()
	if err != nil {
		t.Fatalf("account lost across reopen: %v", err)
	}
	if acct.Address != addr.Hex() {
		t.Fatalf("reopened address %s does not match %s", acct.Address, addr.Hex())
	}
}
