package gmemstore_test

import (
	"testing"

	"github.com/gordian-engine/gledger/gstore"
	"github.com/gordian-engine/gledger/gstore/gmemstore"
	"github.com/gordian-engine/gledger/gstore/gstoretest"
)

func TestStoreCompliance(t *testing.T) {
	t.Parallel()

	gstoretest.TestStoreCompliance(t, func(cleanup func(func())) (gstore.Store, error) {
		return gmemstore.NewStore(), nil
	})
}
