package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gmarchetti/chatsync/internal/ctl"
	"github.com/gmarchetti/chatsync/internal/session"
	"github.com/gmarchetti/chatsync/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := ctl.New(session.SocketPath(sessionName))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "sync":
		cmdSync(ctx, c)
	case "send":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: chatsyncctl send <conversation> <sender> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], args[2], args[3], *jsonFlag)
	case "retry":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatsyncctl retry <message-id>")
			os.Exit(1)
		}
		cmdRetry(ctx, c, args[1])
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatsyncctl messages <conversation>")
			os.Exit(1)
		}
		cmdMessages(ctx, c, args[1], *jsonFlag)
	case "conversations":
		cmdConversations(ctx, c, *jsonFlag)
	case "users":
		cmdUsers(ctx, c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatsyncctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show connection state and sync watermarks")
	fmt.Fprintln(os.Stderr, "  sync                            Trigger an immediate sync pass")
	fmt.Fprintln(os.Stderr, "  send <conv> <sender> <text>     Enqueue a text message")
	fmt.Fprintln(os.Stderr, "  retry <message-id>              Re-queue a failed message")
	fmt.Fprintln(os.Stderr, "  messages <conv>                 Show newest messages in a conversation")
	fmt.Fprintln(os.Stderr, "  conversations                   List conversations by recent activity")
	fmt.Fprintln(os.Stderr, "  users                           List recently seen users")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdStatus(ctx context.Context, c *ctl.Client, jsonOut bool) {
	st, err := c.SyncStatus(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Connection:    %s\n", st.Connection)
	fmt.Printf("Pending sends: %d\n", st.PendingSends)
	fmt.Printf("Failed sends:  %d\n", st.FailedSends)
	for entity, wm := range st.Watermarks {
		fmt.Printf("Watermark %-14s %d\n", entity+":", wm)
	}
}

func cmdSync(ctx context.Context, c *ctl.Client) {
	if err := c.TriggerSync(ctx); err != nil {
		fatal(err)
	}
	fmt.Println("sync triggered")
}

func cmdSend(ctx context.Context, c *ctl.Client, conversationID, senderID, text string, jsonOut bool) {
	msg, err := c.Send(ctx, conversationID, senderID, text)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("enqueued %s (%s)\n", msg.ID, msg.Status)
}

func cmdRetry(ctx context.Context, c *ctl.Client, messageID string) {
	if err := c.Retry(ctx, messageID); err != nil {
		fatal(err)
	}
	fmt.Println("retry queued")
}

func cmdMessages(ctx context.Context, c *ctl.Client, conversationID string, jsonOut bool) {
	page, err := c.Messages(ctx, conversationID, store.DefaultPageSize, 0)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(page)
		return
	}
	for _, m := range page.Items {
		body := ""
		if m.Content != nil {
			body = m.Content.Body
		}
		ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
		fmt.Printf("[%s] %-12s %-9s %s\n", ts, m.SenderID, m.Status, body)
	}
	if page.HasMore {
		fmt.Printf("... more (cursor %d)\n", page.NextCursor)
	}
}

func cmdConversations(ctx context.Context, c *ctl.Client, jsonOut bool) {
	page, err := c.Conversations(ctx, store.DefaultPageSize, 0)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(page)
		return
	}
	for _, conv := range page.Items {
		name := conv.Name
		if name == "" {
			name = conv.ID
		}
		ts := time.UnixMilli(conv.LastMessageAt).Format("2006-01-02 15:04")
		fmt.Printf("%-30s %s\n", name, ts)
	}
}

func cmdUsers(ctx context.Context, c *ctl.Client, jsonOut bool) {
	users, err := c.Users(ctx, store.DefaultPageSize)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(users)
		return
	}
	for _, u := range users {
		fmt.Printf("%-24s %-8s last seen %s\n", u.Name, u.Status,
			time.UnixMilli(u.LastSeen).Format("2006-01-02 15:04"))
	}
}
