package gabci

import (
	"fmt"

	abcitypes "github.com/cometbft/cometbft/api/cometbft/abci/v1"
)

// Event and EventAttribute are the CometBFT ABCI event types,
// so that engines and integration layers share one representation.
type (
	Event          = abcitypes.Event
	EventAttribute = abcitypes.EventAttribute
)

// NewEvent is a convenience constructor for an indexed event
// from alternating key and value strings.
// It panics if given an odd number of strings.
func NewEvent(typ string, kvs ...string) Event {
	if len(kvs)%2 != 0 {
		panic(fmt.Errorf("BUG: NewEvent(%q) requires key-value pairs, got %d strings", typ, len(kvs)))
	}

	e := Event{Type: typ}
	if len(kvs) > 0 {
		e.Attributes = make([]EventAttribute, 0, len(kvs)/2)
	}
	for i := 0; i < len(kvs); i += 2 {
		e.Attributes = append(e.Attributes, EventAttribute{
			Key:   kvs[i],
			Value: kvs[i+1],
			Index: true,
		})
	}
	return e
}
