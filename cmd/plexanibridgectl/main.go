// Command plexanibridgectl is the operator CLI for the plexanibridge
// service: minting service tokens, checking profile status, triggering
// syncs, browsing history, and undoing a sync decision. A cobra root
// command over a single long-lived service token, not a login/refresh
// flow, since the control surface (internal/webhookapi) has no
// concept of end users.
package main

import (
	"fmt"
	"os"

	"plexanibridge/cmd/plexanibridgectl/command"
)

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
