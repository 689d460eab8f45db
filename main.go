// ./main.go
package main

import (
	"github.com/hexlane/operant/cmd"
)

// main is the entry point for the operant CLI.
func main() {
	cmd.Execute()
}
