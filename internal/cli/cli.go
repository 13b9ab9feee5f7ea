package cli

import (
	"flag"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/covstar/luacov/internal/version"
)

// Command defines a single CLI entrypoint.
type Command struct {
	Name    string
	Summary string
	Run     func(args []string, stdout, stderr io.Writer) error
}

// Execute runs the command and returns a process exit code.
func Execute(cmd Command, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() {
		Writef(stderr, "usage: %s [flags]\n\n%s\n\nflags:\n", cmd.Name, cmd.Summary)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitOK
		}
		Writeln(stderr, err)
		return ExitError
	}

	if *showVersion {
		Writef(stdout, "%s %s\n", cmd.Name, version.String())
		return ExitOK
	}

	if cmd.Run == nil {
		Writef(stderr, "%s: no command configured\n", cmd.Name)
		return ExitError
	}

	if err := cmd.Run(fs.Args(), stdout, stderr); err != nil {
		Writef(stderr, "%s: %v\n", cmd.Name, err)
		return ExitError
	}

	return ExitOK
}

// IsTerminal reports whether w is a terminal a text reporter should
// colorize output for. Piped or redirected output (a regular file, a
// pipe to another process) never gets ANSI codes.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
