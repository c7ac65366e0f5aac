package gabci

import (
	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
)

// Request is a closed sum type over the consensus engine's calls into the driver.
// The set of variants is fixed by the unexported marker method;
// the driver switches over them exhaustively.
type Request interface {
	isRequest()
}

// InitChainRequest is sent once, at genesis.
type InitChainRequest struct {
	ChainID string

	// The height of the first block the engine will propose.
	InitialHeight int64

	// Raw genesis application state.
	// The driver decodes it as a gapp.GenesisAppState.
	AppStateBytes []byte

	// Consensus parameters from the genesis file.
	// They are echoed back unchanged in the [InitChainResponse].
	ConsensusParams *cometapitypes.ConsensusParams
}

// BeginBlockRequest starts execution of a decided block.
type BeginBlockRequest struct {
	Header cometapitypes.Header
}

// DeliverTxRequest applies a single transaction of the current block.
type DeliverTxRequest struct {
	Tx []byte
}

// EndBlockRequest finishes execution of the current block.
type EndBlockRequest struct {
	Height int64
}

// CommitRequest persists the current block's state changes.
type CommitRequest struct{}

// PrepareProposalRequest asks the driver which of the candidate transactions
// to include in a block that this node is proposing.
type PrepareProposalRequest struct {
	// Candidate transactions, in mempool order.
	Txs [][]byte

	// Maximum total size in bytes of the returned transactions.
	MaxTxBytes int64

	Height int64
}

// ProcessProposalRequest asks the driver whether a proposed block is acceptable.
type ProcessProposalRequest struct {
	Txs [][]byte

	Height int64
}

func (InitChainRequest) isRequest()       {}
func (BeginBlockRequest) isRequest()      {}
func (DeliverTxRequest) isRequest()       {}
func (EndBlockRequest) isRequest()        {}
func (CommitRequest) isRequest()          {}
func (PrepareProposalRequest) isRequest() {}
func (ProcessProposalRequest) isRequest() {}
