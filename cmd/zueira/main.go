// Command zueira runs the WhatsApp joke bot and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/tillberg/autorestart"

	"github.com/soyeahso/zueira/internal/cli"
)

func main() {
	// Restart in place when the binary is rebuilt.
	go autorestart.RestartOnChange()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
