// Command exec-shim is the binary behind every shim-farm symlink. Invoked
// under the name of the executable it shadows, it records the invocation and
// forwards to the genuine executable found past the shim directory.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"buildlogger/internal/interpose"
)

func main() {
	token := filepath.Base(os.Args[0])

	// Only returns on failure to replace the image.
	err := interpose.Execvp(token, os.Args)
	fmt.Fprintf(os.Stderr, "%s: %v\n", token, err)
	os.Exit(exitStatus(err))
}

// exitStatus maps a forwarding failure to the shell convention: 127 for
// "command not found", 126 for "found but cannot be executed".
func exitStatus(err error) int {
	if errors.Is(err, unix.ENOENT) {
		return 127
	}
	return 126
}
