package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cchalm/chatwidget/internal/widget"
)

var errExit = errors.New("exit")

// command is a parsed input line. Local commands are handled by the REPL itself and carry no action.
type command struct {
	local  string
	action widget.Action
}

const helpText = `Type a message and press Enter to send it. Commands:
  /attach PATH              attach a file to the next message
  /drop PATH                attach an image to the next message
  /detach                   discard the pending attachment
  /copy N                   copy message N to the clipboard
  /remove N                 remove message N
  /clear                    clear the chat
  /download FILE [FORMAT]   save the chat as txt, md, json or yaml
  /theme                    toggle light and dark theme
  /history                  show the chat
  /help                     show this help
  /exit                     quit
Press Ctrl+C while a reply is pending to cancel it.`

// parseCommand maps an input line to a widget action. Lines not starting with '/' are messages.
func parseCommand(line string) (command, error) {
	if !strings.HasPrefix(line, "/") {
		return command{action: widget.Action{Kind: widget.KindSend, Text: line}}, nil
	}

	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/help", "/history":
		return command{local: name}, nil
	case "/exit", "/quit":
		return command{}, errExit
	case "/attach", "/drop":
		if len(args) == 0 {
			return command{}, fmt.Errorf("usage: %s PATH", name)
		}
		kind := widget.KindAttachFile
		if name == "/drop" {
			kind = widget.KindDropFile
		}
		return command{action: widget.Action{Kind: kind, Path: strings.Join(args, " ")}}, nil
	case "/detach":
		return command{action: widget.Action{Kind: widget.KindRemoveAttachment}}, nil
	case "/copy", "/remove":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: %s N", name)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("invalid message number '%s'", args[0])
		}
		kind := widget.KindCopyMessage
		if name == "/remove" {
			kind = widget.KindRemoveMessage
		}
		return command{action: widget.Action{Kind: kind, Index: n - 1}}, nil
	case "/clear":
		return command{action: widget.Action{Kind: widget.KindClearChat}}, nil
	case "/download":
		if len(args) == 0 || len(args) > 2 {
			return command{}, errors.New("usage: /download FILE [FORMAT]")
		}
		format := formatFromPath(args[0])
		if len(args) == 2 {
			format = args[1]
		}
		return command{action: widget.Action{Kind: widget.KindDownload, Path: args[0], Format: format}}, nil
	case "/theme":
		return command{action: widget.Action{Kind: widget.KindToggleTheme}}, nil
	default:
		return command{}, fmt.Errorf("unknown command '%s', type /help for help", name)
	}
}

// formatFromPath picks an export format from a file extension, defaulting to plain text
func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "md"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "txt"
	}
}
