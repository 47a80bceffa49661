package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/educhat/pkg/chatclient"
)

func newChatCommand() *cobra.Command {
	var (
		url   string
		token string
		room  string
		uid   string
		name  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat client",
		Long: "Type messages and press Enter to send. Commands: /join <room>, /leave [room], /typing. " +
			"Ctrl+C to exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv("EDUCHAT_TOKEN")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			out := cmd.OutOrStdout()
			client, err := chatclient.Dial(ctx, url, token,
				chatclient.WithIdentity(uid, name),
				chatclient.WithEventHandler(func(ev chatclient.Event) { printEvent(out, ev) }),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			runErr := make(chan error, 1)
			go func() {
				defer cancel()
				runErr <- client.Run(ctx)
			}()

			if err := client.JoinRoom(ctx, room); err != nil {
				return err
			}
			fmt.Fprintf(out, "Connected to %s\n", url)

			readInput(ctx, cmd.InOrStdin(), out, client)

			cancel()
			select {
			case err := <-runErr:
				return err
			default:
				return nil
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&url, "url", "ws://localhost:8080/ws", "WebSocket address")
	flags.StringVar(&token, "token", "", "bearer token (default $EDUCHAT_TOKEN)")
	flags.StringVar(&room, "room", "", "room to join (default global)")
	flags.StringVar(&uid, "uid", "", "your uid, used for local echo")
	flags.StringVar(&name, "name", "", "display name sent with messages")
	return cmd
}

func readInput(ctx context.Context, in io.Reader, out io.Writer, client *chatclient.Client) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := handleLine(ctx, client, strings.TrimSpace(line)); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				return
			}
		}
	}
}

func handleLine(ctx context.Context, client *chatclient.Client, line string) error {
	switch {
	case line == "":
		return nil
	case strings.HasPrefix(line, "/join"):
		return client.JoinRoom(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/join")))
	case strings.HasPrefix(line, "/leave"):
		return client.LeaveRoom(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/leave")))
	case line == "/typing":
		return client.Typing(ctx, "")
	default:
		_, err := client.Send(ctx, "", line)
		return err
	}
}

func printEvent(out io.Writer, ev chatclient.Event) {
	switch ev.Name {
	case "joinedRoom":
		fmt.Fprintf(out, "[room %s] joined\n", ev.Room)
	case "roomMessages":
		for _, m := range ev.Messages {
			fmt.Fprintf(out, "[%s] %s: %s\n", m.Room, m.SenderName, m.Text)
		}
	case "newMessage":
		fmt.Fprintf(out, "[%s] %s: %s\n", ev.Message.Room, ev.Message.SenderName, ev.Message.Text)
	case "typing":
		fmt.Fprintf(out, "[%s] %s is typing...\n", ev.Room, ev.Typing.DisplayName)
	}
}
