package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes. A partial file still counts as success.
const (
	exitOK         = 0
	exitFileFailed = 1
	exitFatal      = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "[ERROR]", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "[ERROR]", err)
	return exitFatal
}
