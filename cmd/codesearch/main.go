// Package main is the entry point of the codesearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/codesearch/cmd/codesearch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
