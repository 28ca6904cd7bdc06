// The main package for the restockwatch executable.
package main

import (
	"github.com/JakeFAU/restock-watch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
