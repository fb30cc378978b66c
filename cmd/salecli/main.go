package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ligun0805/salekit/internal/saleerr"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderErr(err))
		os.Exit(1)
	}
}

// renderErr prefixes err with its taxonomy tag, e.g. "[OUT_OF_BOUNDS:max] ...".
func renderErr(err error) string {
	return fmt.Sprintf("[%s] %s", saleerr.Kind(err), friendlyErr(err))
}
