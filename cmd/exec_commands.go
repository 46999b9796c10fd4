package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/boxlite/boxlite/controlplane/rpc"
)

func execCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [flags] BOX -- CMD [ARGS...]",
		Short: "Start a process in a box",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := args[0]
			cmdline := args[1:]

			interactive, _ := cmd.Flags().GetBool("interactive")
			container, _ := cmd.Flags().GetString("container")
			workdir, _ := cmd.Flags().GetString("workdir")
			envPairs, _ := cmd.Flags().GetStringArray("env")

			env, err := parsePairs(envPairs)
			if err != nil {
				return fmt.Errorf("invalid --env: %w", err)
			}
			if container != "" {
				if env == nil {
					env = map[string]string{}
				}
				env["BOXLITE_EXECUTOR"] = "container=" + container
			}

			req := rpc.ExecRequest{
				Executable: cmdline[0],
				Args:       cmdline[1:],
				Env:        env,
				Workdir:    workdir,
			}
			if interactive {
				cols, rows := 80, 24 //nolint:mnd
				if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					cols, rows = w, h
				}
				req.TTY = &rpc.TTYSize{Rows: uint16(rows), Cols: uint16(cols)} //nolint:gosec
			}

			resp, err := engine.Exec(cmd.Context(), ref, req)
			if err != nil {
				return fmt.Errorf("exec: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Started execution %s (pid %d)\n", resp.ExecutionID, resp.Pid)

			if interactive {
				return attachInteractive(cmd, ref, resp.ExecutionID)
			}
			return attachOnce(cmd, ref, resp.ExecutionID)
		},
	}
	cmd.Flags().BoolP("interactive", "i", false, "attach stdin/stdout/stderr with a raw terminal")
	cmd.Flags().String("container", "", "run inside this container id instead of directly in the guest")
	cmd.Flags().String("workdir", "", "working directory for the new process")
	cmd.Flags().StringArray("env", nil, "environment variable KEY=VALUE (repeatable)")
	return cmd
}

func attachCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attach BOX EXECUTION_ID",
		Short: "Attach to a running execution's output",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return attachOnce(cmd, args[0], args[1])
		},
	}
}

func attachOnce(cmd *cobra.Command, ref, executionID string) error {
	if err := engine.Attach(cmd.Context(), ref, executionID, os.Stdout, os.Stderr); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return nil
}

// attachInteractive puts the local terminal in raw mode and relays
// stdin/stdout concurrently, carrying SIGWINCH through to the guest PTY via
// ResizeTty, the way the teacher's serial-console attach relayed a raw PTY
// file — here over the Attach/SendInput/ResizeTty RPCs instead.
func attachInteractive(cmd *cobra.Command, ref, executionID string) error {
	ctx := cmd.Context()
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return attachOnce(cmd, ref, executionID)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-sigCh:
				if w, h, err := term.GetSize(fd); err == nil {
					_ = engine.ResizeTty(ctx, ref, executionID, uint16(h), uint16(w), 0, 0) //nolint:gosec
				}
			case <-done:
				return
			}
		}
	}()

	errCh := make(chan error, 2) //nolint:mnd
	go func() { errCh <- engine.Attach(ctx, ref, executionID, os.Stdout, os.Stdout) }()
	go func() { errCh <- engine.SendInput(ctx, ref, executionID, os.Stdin) }()

	for range 2 {
		if err := <-errCh; err != nil && err != io.EOF {
			return err
		}
	}
	return nil
}
