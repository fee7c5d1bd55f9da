// Package env reads the environment variables that configure the backends.
package env

import (
	"fmt"
	"os"
	"testing"
)

// Lookup returns the value of the environment variable key, or def if the
// variable is unset or empty.
func Lookup(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Require skips t unless all of the given environment variables are set.
// Backend tests that need a running server call Require before connecting.
func Require(t testing.TB, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if os.Getenv(key) == "" {
			t.Skipf("%s not set", key)
		}
	}
}

// Temp sets the environment variable key to fmt.Sprint(val) and returns a
// function that restores its previous state.
func Temp(key string, val any) func() {
	org, ok := os.LookupEnv(key)
	if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
		panic(err)
	}
	return func() {
		var err error
		if ok {
			err = os.Setenv(key, org)
		} else {
			err = os.Unsetenv(key)
		}
		if err != nil {
			panic(err)
		}
	}
}
