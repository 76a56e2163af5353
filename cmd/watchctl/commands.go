package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	notRunningMsg = "El bot no está en ejecución"
	noLogMsg      = "No hay archivo de logs"
)

type options struct {
	addr    string
	timeout time.Duration
}

// NewRootCmd builds the watchctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "watchctl",
		Short:         "Control a running chanwatch server",
		Long:          "watchctl starts the chanwatch server and sends it control commands over its HTTP surface.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", envOr("WATCHCTL_ADDR", "http://localhost:8080"), "Control surface address")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		newStartCmd(),
		newGetCmd(opts, "status [channel]", "Show the primary channel or one channel's state", "/status", cobra.MaximumNArgs(1)),
		newGetCmd(opts, "list", "List watched channels and their points", "/list", cobra.NoArgs),
		newGetCmd(opts, "add <channel>", "Start watching a channel", "/add", cobra.ExactArgs(1)),
		newGetCmd(opts, "remove <channel>", "Stop watching a channel", "/remove", cobra.ExactArgs(1)),
		newGetCmd(opts, "change <channel>", "Move the primary designation to a channel", "/change", cobra.ExactArgs(1)),
		newGetCmd(opts, "stop", "Stop the server", "/exit", cobra.NoArgs),
		newGetCmd(opts, "health", "Show server readiness", "/health/ready", cobra.NoArgs),
		newLogCmd(),
	)
	return rootCmd
}

// newGetCmd builds a command that maps onto one GET route; a single argument
// becomes the last path segment.
func newGetCmd(opts *options, use, short, path string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := path
			if len(args) == 1 {
				p += "/" + url.PathEscape(args[0])
			}
			return get(cmd, opts, p)
		},
	}
}

func get(cmd *cobra.Command, opts *options, path string) error {
	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Get(strings.TrimRight(opts.addr, "/") + path)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			fmt.Fprintln(cmd.OutOrStdout(), notRunningMsg)
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	out := string(body)
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	if resp.StatusCode >= 400 {
		fmt.Fprint(cmd.ErrOrStderr(), out)
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func newStartCmd() *cobra.Command {
	var bin string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the chanwatch server in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server := exec.CommandContext(cmd.Context(), bin)
			server.Stdin = os.Stdin
			server.Stdout = cmd.OutOrStdout()
			server.Stderr = cmd.ErrOrStderr()
			if err := server.Run(); err != nil {
				return fmt.Errorf("run %s: %w", bin, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bin, "bin", envOr("CHANWATCH_BIN", "chanwatch"), "Server binary to run")
	return cmd
}

func newLogCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the server log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), noLogMsg)
				return nil
			}
			defer f.Close()
			_, err = io.Copy(cmd.OutOrStdout(), f)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", envOr("LOG_FILE", "twitch_watcher.log"), "Log file to print")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
