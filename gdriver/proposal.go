package gdriver

import (
	"context"
	"fmt"
	"slices"

	"github.com/gordian-engine/gledger/gabci"
)

// BudgetError reports an invalid proposal byte budget.
type BudgetError struct {
	MaxTxBytes int64
}

func (e BudgetError) Error() string {
	return fmt.Sprintf("invalid proposal byte budget %d: must not be negative", e.MaxTxBytes)
}

// PackProposal returns the longest prefix of txs whose total size fits in maxTxBytes.
//
// Transactions are taken in order and packing stops at the first one that does not fit,
// even if a later, smaller one would.
// Transaction contents are not inspected.
// The only error is a [BudgetError] for a negative maxTxBytes.
func PackProposal(txs [][]byte, maxTxBytes int64) ([][]byte, error) {
	if maxTxBytes < 0 {
		return nil, BudgetError{MaxTxBytes: maxTxBytes}
	}

	budget := uint64(maxTxBytes)
	var total uint64
	n := 0
	for _, tx := range txs {
		// Written as a subtraction so it cannot overflow; total never exceeds budget.
		if uint64(len(tx)) > budget-total {
			break
		}
		total += uint64(len(tx))
		n++
	}

	return slices.Clone(txs[:n]), nil
}

// ProposalPolicy decides whether to accept a block proposed by another validator.
//
// A returned error is fatal to the driver;
// an unacceptable proposal is reported as [gabci.ProposalReject].
type ProposalPolicy interface {
	ProcessProposal(ctx context.Context, txs [][]byte, height int64) (gabci.ProposalStatus, error)
}

// AcceptAll accepts every proposal. It is the default policy.
type AcceptAll struct{}

func (AcceptAll) ProcessProposal(context.Context, [][]byte, int64) (gabci.ProposalStatus, error) {
	return gabci.ProposalAccept, nil
}

// MaxBytesPolicy rejects proposals whose total transaction size exceeds MaxTxBytes,
// or that contain an empty transaction.
type MaxBytesPolicy struct {
	MaxTxBytes int64
}

func (p MaxBytesPolicy) ProcessProposal(_ context.Context, txs [][]byte, _ int64) (gabci.ProposalStatus, error) {
	if p.MaxTxBytes < 0 {
		return gabci.ProposalUnknown, BudgetError{MaxTxBytes: p.MaxTxBytes}
	}

	budget := uint64(p.MaxTxBytes)
	var total uint64
	for _, tx := range txs {
		if len(tx) == 0 {
			return gabci.ProposalReject, nil
		}
		if uint64(len(tx)) > budget-total {
			return gabci.ProposalReject, nil
		}
		total += uint64(len(tx))
	}
	return gabci.ProposalAccept, nil
}
