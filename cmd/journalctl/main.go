// Command journalctl is an operator CLI for a sqljournal deployment: it
// writes, replays, and tags events, runs the delete protocol, and tails
// live queries from a terminal. It talks to the database directly
// through internal/journal rather than through an RPC server —
// journalctl embeds the service instead of dialing one.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
