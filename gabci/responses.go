package gabci

import (
	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
)

// Response is the closed sum type of driver responses.
// Each [Request] variant has exactly one matching Response variant.
type Response interface {
	isResponse()
}

// Result codes for [DeliverTxResponse.Code].
const (
	CodeOK uint32 = 0

	// CodeTxFailed is the only non-zero code the driver produces.
	// The failure cause is in the response's Log field.
	CodeTxFailed uint32 = 1
)

type InitChainResponse struct {
	ConsensusParams *cometapitypes.ConsensusParams

	// The complete initial validator set, as reported by the engine
	// after it processed the genesis state.
	Validators []Validator

	AppHash []byte
}

type BeginBlockResponse struct {
	Events []Event
}

type DeliverTxResponse struct {
	Code uint32

	// Human-readable failure detail when Code is non-zero.
	// It contains the full chain of wrapped causes.
	Log string

	Events []Event
}

// IsOK reports whether the transaction was applied successfully.
func (r DeliverTxResponse) IsOK() bool {
	return r.Code == CodeOK
}

type EndBlockResponse struct {
	// The complete validator set after this block, replacing the engine's view.
	// This is not a delta.
	ValidatorUpdates []Validator

	// Always nil; the driver does not change consensus parameters.
	ConsensusParamUpdates *cometapitypes.ConsensusParams

	Events []Event
}

type CommitResponse struct {
	AppHash []byte

	// Always zero; the driver never hints at pruning.
	RetainHeight int64
}

type PrepareProposalResponse struct {
	Txs [][]byte
}

// ProposalStatus is the outcome of a [ProcessProposalRequest].
type ProposalStatus uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type ProposalStatus -trimprefix Proposal

const (
	ProposalUnknown ProposalStatus = iota
	ProposalAccept
	ProposalReject
)

type ProcessProposalResponse struct {
	Status ProposalStatus
}

func (InitChainResponse) isResponse()       {}
func (BeginBlockResponse) isResponse()      {}
func (DeliverTxResponse) isResponse()       {}
func (EndBlockResponse) isResponse()        {}
func (CommitResponse) isResponse()          {}
func (PrepareProposalResponse) isResponse() {}
func (ProcessProposalResponse) isResponse() {}
