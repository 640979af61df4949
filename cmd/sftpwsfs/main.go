// Command sftpwsfs mounts a remote sftpwsd-served virtual root onto a
// local kernel mountpoint via the external FUSE bridge.
package main

import (
	"os"

	"github.com/marmos91/sftpws/cmd/sftpwsfs/commands"
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
