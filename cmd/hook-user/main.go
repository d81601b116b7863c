// Command hook-user is the host-invoked executable fired on every user
// prompt (spec §6.2). It re-reads the current session log, enriches the
// latest message, and upserts it, never blocking the host.
package main

import (
	"os"

	"chronicle/internal/hookcli"
)

func main() {
	os.Exit(hookcli.Run("hook-user", os.Args[1:]))
}
