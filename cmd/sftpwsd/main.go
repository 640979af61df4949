// Command sftpwsd serves one virtual root over a WebSocket-transported,
// SFTPv3-derived binary protocol.
package main

import (
	"os"

	"github.com/marmos91/sftpws/cmd/sftpwsd/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		commands.PrintErr("%v", err)
		os.Exit(1)
	}
}
