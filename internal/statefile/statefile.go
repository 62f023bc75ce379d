// Package statefile persists the minting account and deployed-contract record
// shared between the bootstrap CLI (single writer) and the service process
// (read-mostly). A file lock keeps the two from racing: exclusive for the
// writer, shared for readers, and acquisition never waits.
package statefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"
)

var (
	// ErrWouldBlock means another process holds a conflicting lock.
	ErrWouldBlock = errors.New("state is locked: looks like another instance is running")
	ErrNoAccount  = errors.New("account was not initialized")
	ErrNotDeployed = errors.New("contract was not deployed")
)

type Account struct {
	Address string `yaml:"address"`
	Secret  string `yaml:"secret"`
}

// Record is the on-disk shape of the bootstrap state.
type Record struct {
	Account             *Account `yaml:"account,omitempty"`
	MinterContract      string   `yaml:"minter_contract,omitempty"`
	MinterContractBlock uint64   `yaml:"minter_contract_block_num,omitempty"`
}

// State is a locked view over the record. Close releases the lock; the zero
// of everything else is a missing record, which is valid for first-time init.
type State struct {
	path   string
	lock   *os.File
	record Record
}

// Open acquires the lock (shared when the caller only reads, exclusive
// otherwise) and loads the record if the file exists. It fails fast with
// ErrWouldBlock instead of waiting on a holder.
func Open(dir string, shared bool) (*State, error) {
	path := filepath.Join(dir, "state.yaml")

	lock, err := acquireLock(path+".lock", shared)
	if err != nil {
		return nil, err
	}

	s := &State{path: path, lock: lock}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.record); err != nil {
		s.Close()
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return s, nil
}

func acquireLock(path string, shared bool) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	how := unix.LOCK_EX
	if shared {
		how = unix.LOCK_SH
	}
	if err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EACCES) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("lock state: %w", err)
	}
	return f, nil
}

func (s *State) Record() Record { return s.record }

func (s *State) Account() (Account, error) {
	if s.record.Account == nil || s.record.Account.Address == "" {
		return Account{}, ErrNoAccount
	}
	return *s.record.Account, nil
}

func (s *State) Contract() (address string, deployBlock uint64, err error) {
	if s.record.MinterContract == "" {
		return "", 0, ErrNotDeployed
	}
	return s.record.MinterContract, s.record.MinterContractBlock, nil
}

func (s *State) SetAccount(acct Account) { s.record.Account = &acct }

func (s *State) SetContract(address string, deployBlock uint64) {
	s.record.MinterContract = address
	s.record.MinterContractBlock = deployBlock
}

// Save writes the record with owner-only permissions and syncs it to disk.
func (s *State) Save() error {
	blob, err := yaml.Marshal(&s.record)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	return f.Close()
}

// Close releases the lock. Safe to call more than once.
func (s *State) Close() {
	if s.lock != nil {
		_ = unix.Flock(int(s.lock.Fd()), unix.LOCK_UN)
		_ = s.lock.Close()
		s.lock = nil
	}
}
