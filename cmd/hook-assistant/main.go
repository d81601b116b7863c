// Command hook-assistant is the host-invoked executable fired on every
// assistant response (spec §6.2). It re-reads the current session log,
// enriches the latest message, and upserts it, never blocking the host.
package main

import (
	"os"

	"chronicle/internal/hookcli"
)

func main() {
	os.Exit(hookcli.Run("hook-assistant", os.Args[1:]))
}
