//go:build !debug

package gdriver

func (d *Driver) assertCommitVersion(before, after uint64) {}
