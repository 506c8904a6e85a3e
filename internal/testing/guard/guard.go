// Package guard is imported for its side effects by test packages that build
// commands or routers. It marks the process as a test run and forces JSON
// logs so output stays machine readable.
package guard

import "os"

// Defaults applied unless the variable is already present.
var Defaults = map[string]string{
	"DASHBOARD_TEST_MODE": "1",
	"LOG_FORMAT":          "json",
}

func init() {
	for key, value := range Defaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}
