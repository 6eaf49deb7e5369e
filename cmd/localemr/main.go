// Command localemr is the rounding-list CLI over the local patient roster.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

var exitFunc = os.Exit

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		exitFunc(1)
	}
}

// run executes one command line. Errors are reported on stderr and returned.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	env := &environment{open: openApp}
	root := newRootCmd(env)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		env.fail(err)
		_, _ = fmt.Fprintf(stderr, "localemr: %v\n", err)
	}
	env.close()
	return err
}
