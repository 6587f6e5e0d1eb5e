// lobster is the command-line entrypoint for the lobstershell
// governance pipeline.
package main

import "github.com/gk0729/LobsterShell/internal/cli"

func main() {
	cli.Execute()
}
