// Package contracts carries the ABI of the ReenterableMinter contract and a
// loader for compiled build artifacts (deployment bytecode lives in the
// artifact JSON produced by the contract build, not in this binary).
package contracts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReenterableMinterABI covers the entry points the service relies on:
// an idempotent mint keyed by a caller-supplied bytes32 id, and the
// processed-id mapping used to answer status queries.
const ReenterableMinterABI = `[
	{
		"inputs": [{"internalType": "address", "name": "_token", "type": "address"}],
		"stateMutability": "nonpayable",
		"type": "constructor"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "_mint_id", "type": "bytes32"},
			{"internalType": "address", "name": "_to", "type": "address"},
			{"internalType": "uint256", "name": "_amount", "type": "uint256"}
		],
		"name": "mint",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
		"name": "m_processed_mint_id",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "m_token",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Artifact is the subset of a compiled contract JSON the deployer needs.
type Artifact struct {
	ABI            json.RawMessage `json:"abi"`
	Bytecode       string          `json:"bytecode"`
	UnlinkedBinary string          `json:"unlinked_binary"`
}

// LoadArtifact reads <dir>/<name>.json.
func LoadArtifact(dir, name string) (*Artifact, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("read contract artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("parse contract artifact: %w", err)
	}
	return &art, nil
}

// Bin returns the deployment bytecode, preferring the modern artifact key.
func (a *Artifact) Bin() (string, error) {
	if a.Bytecode != "" {
		return a.Bytecode, nil
	}
	if a.UnlinkedBinary != "" {
		return a.UnlinkedBinary, nil
	}
	return "", fmt.Errorf("contract artifact has no bytecode")
}
