package main

import (
	"fmt"
	"os"

	"onboarding/internal/cli"
)

// main hands off to the command tree. Without arguments the service runs.
func main() {
	if err := cli.Execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
