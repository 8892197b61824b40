// Command rollcall runs attendance capture sessions without the desktop shell.
package main

import (
	"fmt"
	"os"

	"rollcall/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
