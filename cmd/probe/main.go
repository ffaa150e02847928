// probe is a manual integration harness for the marketplace HTTP API: OTP
// authentication, cookie sessions, chat, refund requests, KYC uploads and
// admin review.
//
// Usage:
//
//	probe run [suite...]          Run built-in probe suites (auth chat refund kyc admin)
//	probe test [path]             Run JSON/YAML scenarios (default ./scenarios/)
//	probe token                   Print a forged session token
//	probe twin                    Serve the in-memory API twin
//	probe version                 Print the version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and maps its outcome to a process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := newApp(stdout, stderr).RunContext(ctx, args)
	if err == nil {
		return 0
	}
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		if msg := exit.Error(); msg != "" {
			fmt.Fprintf(stderr, "probe: %s\n", msg)
		}
		return exit.ExitCode()
	}
	fmt.Fprintf(stderr, "probe: %v\n", err)
	return 1
}
