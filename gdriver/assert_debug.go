//go:build debug

package gdriver

import (
	"fmt"

	"github.com/gordian-engine/gledger/gstore"
)

func (d *Driver) assertCommitVersion(before, after uint64) {
	if d.assertEnv == nil || !d.assertEnv.Enabled("gdriver.commit.version") {
		return
	}

	if want := gstore.NextVersion(before); after != want {
		d.assertEnv.HandleAssertionFailure(fmt.Errorf(
			"commit moved store from version %d to %d; expected %d",
			before, after, want,
		))
	}
}
