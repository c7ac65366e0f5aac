package gtest

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TimeFactor is a multiplier controlled by the
// GLEDGER_TEST_TIME_FACTOR environment variable
// to increase test-related timeouts on contended machines.
var TimeFactor ScaledDuration = 1

func init() {
	f := os.Getenv("GLEDGER_TEST_TIME_FACTOR")
	if f == "" {
		return
	}

	n, err := strconv.Atoi(f)
	if err != nil {
		panic(fmt.Errorf(
			"failed to parse GLEDGER_TEST_TIME_FACTOR (%q) into an integer: %w",
			f, err,
		))
	}

	if n <= 0 {
		panic(fmt.Errorf("GLEDGER_TEST_TIME_FACTOR must be positive; got %d", n))
	}

	TimeFactor = ScaledDuration(n)
}

type ScaledDuration time.Duration

// ScaleMs returns ms in milliseconds, multiplied by [TimeFactor].
//
// The helpers in this package only accept a ScaledDuration
// so that callers cannot pass literal timeouts.
func ScaleMs(ms int64) ScaledDuration {
	return TimeFactor * ScaledDuration(ms) * ScaledDuration(time.Millisecond)
}
