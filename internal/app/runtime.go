package app

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/tillpoint/tillpoint/internal/testing/guard"
)

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the TILLPOINT_TEST_MODE flag once.
func detectTestMode() {
	testModeFlag.Store(os.Getenv(guard.TestModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}
