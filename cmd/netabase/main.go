// Command netabase inspects netabase manager directories: root metadata,
// per-Definition metadata and the tables physically present in each store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "netabase: %v\n", err)
		os.Exit(1)
	}
}
