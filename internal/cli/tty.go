package cli

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether r is an interactive terminal.
func IsTTY(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
