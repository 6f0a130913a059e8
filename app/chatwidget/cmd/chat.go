package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/cchalm/chatwidget/internal/ai"
	"github.com/cchalm/chatwidget/internal/widget"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Starts the interactive chat widget. The saved transcript is shown first;
the model only sees messages sent during this run. Press Ctrl+C while a reply
is pending to cancel it, and Ctrl+D or /exit to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	historyFile := ""
	if cfg.StateDir != "" && os.MkdirAll(cfg.StateDir, 0o755) == nil {
		historyFile = filepath.Join(cfg.StateDir, "input_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          userStyle.Render("> "),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	view := newTerminalView(rl.Stdout())
	a, err := newApp(ctx, view)
	if err != nil {
		return err
	}
	defer a.Close()
	d := a.dispatcher

	d.Restore()
	fmt.Fprintln(rl.Stdout(), hintStyle.Render("Type /help for commands."))
	if !d.Session().Configured() {
		fmt.Fprintln(rl.Stdout(), errorStyle.Render(ai.NotConfiguredMessage))
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			} else if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		c, err := parseCommand(line)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(rl.Stdout(), errorStyle.Render(err.Error()))
			continue
		}

		if err := runCommand(ctx, d, c, rl.Stdout()); err != nil {
			fmt.Fprintln(rl.Stdout(), errorStyle.Render(err.Error()))
		}
	}
}

func runCommand(ctx context.Context, d *widget.Dispatcher, c command, out io.Writer) error {
	switch c.local {
	case "/help":
		fmt.Fprintln(out, helpText)
		return nil
	case "/history":
		newTerminalView(out).Reset(d.Records())
		return nil
	}

	switch c.action.Kind {
	case widget.KindSend:
		req, err := d.Send(ctx, c.action.Text)
		if err != nil {
			return err
		}
		awaitReply(d, req)
		return nil
	case widget.KindDownload:
		f, err := os.Create(c.action.Path)
		if err != nil {
			return fmt.Errorf("failed to create download file: %w", err)
		}
		c.action.Out = f
		if err := d.Dispatch(ctx, c.action); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write download file: %w", err)
		}
		fmt.Fprintln(out, hintStyle.Render("Saved "+c.action.Path))
		return nil
	case widget.KindCopyMessage:
		if err := d.Dispatch(ctx, c.action); err != nil {
			return err
		}
		fmt.Fprintln(out, hintStyle.Render("Copied"))
		return nil
	default:
		return d.Dispatch(ctx, c.action)
	}
}

// awaitReply blocks until the request settles. An interrupt while waiting cancels the reply instead of exiting.
func awaitReply(d *widget.Dispatcher, req *ai.Request) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	for {
		select {
		case <-req.Done():
			return
		case <-interrupt:
			if err := d.Cancel(); err != nil && !errors.Is(err, ai.ErrNoActiveRequest) {
				logger.Warn().Err(err).Msg("Failed to cancel reply")
			}
		}
	}
}
