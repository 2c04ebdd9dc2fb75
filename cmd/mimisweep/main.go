// Command mimisweep reads the board of a running Minesweeper game.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/willibrandon/mimisweep/pkg/board"
	"github.com/willibrandon/mimisweep/pkg/config"
	"github.com/willibrandon/mimisweep/pkg/layout"
	"github.com/willibrandon/mimisweep/pkg/procfind"
	"github.com/willibrandon/mimisweep/pkg/procmem"
)

// Exit codes
const (
	exitOK         = 0
	exitFailure    = 1
	exitAttach     = 2
	exitResolution = 3
	exitDecode     = 4
)

const usage = `usage: mimisweep <command> [flags]

commands:
  info      attach to a game and print the resolved layout
  watch     print the board whenever it changes
  dump      capture a memory snapshot of a game
  decode    decode a board from a snapshot directory
  replay    replay a recorded frame log
  version   print version information

Run "mimisweep <command> -h" for command flags.
`

// command is one subcommand of the CLI
type command func(app *app, args []string) error

var commands = map[string]command{
	"info":    runInfo,
	"watch":   runWatch,
	"dump":    runDump,
	"decode":  runDecode,
	"replay":  runReplay,
	"version": runVersion,
}

// app carries what every command needs
type app struct {
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger
	// attach, instanceKey and identify are replaced in tests
	attach      func(pid int) (procmem.Target, error)
	instanceKey func(pid int) (string, error)
	identify    func(pid int) (string, error)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadFromEnvironment()
	if err != nil {
		fmt.Fprintf(stderr, "mimisweep: %v\n", err)
		return exitFailure
	}
	a := newApp(cfg, stdout, stderr)
	return a.run(args)
}

func newApp(cfg config.Config, stdout, stderr io.Writer) *app {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return &app{cfg: cfg, stdout: stdout, stderr: stderr, log: logger, identify: procfind.Identify}
}

func (a *app) run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usage)
		return exitFailure
	}
	name := args[0]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Fprint(a.stdout, usage)
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(a.stderr, "mimisweep: unknown command %q\n\n%s", name, usage)
		return exitFailure
	}
	if err := cmd(a, args[1:]); err != nil {
		if errors.Is(err, errHelp) {
			return exitOK
		}
		fmt.Fprintf(a.stderr, "mimisweep %s: %v\n", name, err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	var (
		attachErr *procmem.AttachError
		resErr    *layout.ResolutionError
		decodeErr *board.DecodeError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &attachErr):
		return exitAttach
	case errors.As(err, &resErr):
		return exitResolution
	case errors.As(err, &decodeErr):
		return exitDecode
	default:
		return exitFailure
	}
}
