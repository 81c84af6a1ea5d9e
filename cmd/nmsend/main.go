// package main implements a command-line utility that talks to a native
// messaging host the way a browser does, for trying out jabref-host by hand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

import (
	"github.com/p00ya/jabref-host/internal/nativemsg"
	"github.com/spf13/cobra"
)

const (
	exitSuccess      = 0
	exitInvalidUsage = 1
	exitFailure      = 2
)

// defaultOrigin is passed to the host like Chrome passes the caller.
const defaultOrigin = "chrome-extension://bifehkofibaamoeaopjglfkddgkijdlh/"

var (
	flagHost    string
	flagOrigin  string
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "nmsend [--host BINARY] REQUEST...",
	Short: "Send JSON requests to a native messaging host and print the replies",
	Example: `  nmsend '{"status":"validate"}'
  nmsend '{"text":"@article{key, title={A}}"}'`,
	Args:          cobra.MinimumNArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if flagTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, flagTimeout)
			defer cancel()
		}
		return send(ctx, cmd.OutOrStdout(), flagHost, flagOrigin, args)
	},
}

func main() {
	rootCmd.Flags().StringVar(&flagHost, "host", "jabref-host", "Host binary to start")
	rootCmd.Flags().StringVar(&flagOrigin, "origin", defaultOrigin, "Caller origin passed to the host")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", time.Minute, "Give up after this long")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if _, ok := err.(*usageError); ok {
			os.Exit(exitInvalidUsage)
		}
		os.Exit(exitFailure)
	}
	os.Exit(exitSuccess)
}

// usageError reports a request that is not valid JSON.
type usageError struct {
	arg int
}

func (e *usageError) Error() string {
	return fmt.Sprintf("request %d is not valid JSON", e.arg+1)
}

// send starts the host, writes each request, and prints each reply on its
// own line.
func send(ctx context.Context, out io.Writer, host, origin string, requests []string) error {
	for i, r := range requests {
		if !json.Valid([]byte(r)) {
			return &usageError{i}
		}
	}

	cmd := exec.CommandContext(ctx, host, origin)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting host: %w", err)
	}

	exchange := func() error {
		for _, r := range requests {
			if err := nativemsg.WriteJSON(stdin, json.RawMessage(r)); err != nil {
				return fmt.Errorf("sending request: %w", err)
			}
			var reply json.RawMessage
			if err := nativemsg.ReadJSON(stdout, nativemsg.MaxResponseBytes, &reply); err != nil {
				return fmt.Errorf("reading reply: %w", err)
			}
			fmt.Fprintf(out, "%s\n", reply)
		}
		return nil
	}
	err = exchange()

	// Closing stdin is how the browser ends the session.
	_ = stdin.Close()
	if waitErr := cmd.Wait(); err == nil && waitErr != nil {
		err = fmt.Errorf("host exited: %w", waitErr)
	}
	return err
}
