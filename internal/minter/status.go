package minter

// State is the externally visible outcome of status reconciliation.
type State string

const (
	// StateMinted means the contract shows the id processed at a depth
	// satisfying the configured confirmation requirement. Terminal.
	StateMinted State = "minted"
	// StateMinting means the request is in flight: mined but not yet
	// confirmed, or submitted but not yet mined.
	StateMinting State = "minting"
	// StateFailed means a mint transaction for this id was mined and
	// reverted. The contract is reentrance-safe, so a revert signals a
	// structural problem (permissions, out of gas), not timing. Terminal.
	StateFailed State = "failed"
	// StateNodeSyncing means no evidence was found but the node is still
	// catching up, so its view cannot be trusted yet.
	StateNodeSyncing State = "node_syncing"
	// StateNotMinted means there is no sign the mint was ever attempted;
	// the caller may safely resubmit the same mint id.
	StateNotMinted State = "not_minted"
)

// Status is recomputed on every query and never persisted.
type Status struct {
	State             State  `json:"status"`
	Confirmations     *int64 `json:"confirmations,omitempty"`
	RestConfirmations *int64 `json:"rest_confirmations,omitempty"`
}

func minting(confirmations, rest int64) Status {
	return Status{
		State:             StateMinting,
		Confirmations:     &confirmations,
		RestConfirmations: &rest,
	}
}
