// Command tuplectl is the command-line client for the tuple-space daemon.
package main

import "github.com/dantte-lp/tuplespaced/cmd/tuplectl/commands"

func main() {
	commands.Execute()
}
