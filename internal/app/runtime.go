package app

import (
	"os"
	"strconv"
	"sync"
)

// testModeEnv is set by internal/testing/guard for every test binary that
// imports it.
const testModeEnv = "DASHBOARD_TEST_MODE"

var testMode struct {
	sync.Mutex
	loaded  bool
	enabled bool
}

// InTestMode reports whether commands should return before dialing Postgres
// or Redis. Any strconv.ParseBool true value enables it.
func InTestMode() bool {
	testMode.Lock()
	defer testMode.Unlock()
	if !testMode.loaded {
		loadTestMode()
	}
	return testMode.enabled
}

// RefreshTestMode rereads the environment.
func RefreshTestMode() {
	testMode.Lock()
	defer testMode.Unlock()
	loadTestMode()
}

func loadTestMode() {
	enabled, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.enabled = err == nil && enabled
	testMode.loaded = true
}
