// Chit CLI - command line client for Chit
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tikki/Chit/clients/go/chit"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHIT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := chit.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "create":
		key, err := chit.NewChatKey()
		exitOnError(err)
		chat, err := client.NewChat(ctx, key)
		exitOnError(err)
		fmt.Printf("chat:   %s\n", chat.ID)
		fmt.Printf("key:    %s\n", key.Base64())
		fmt.Printf("secret: %s\n", chat.Secret)

	case "read":
		chat := openChat(client, 2)
		messages, err := chat.History(ctx)
		exitOnError(err)
		for _, msg := range messages {
			mark := ""
			if !msg.Genuine() {
				mark = " (?)"
			}
			fmt.Printf("[%d] <%s>%s %s\n", msg.ServerTimestamp, msg.From, mark, msg.Text)
		}

	case "post":
		if len(os.Args) < 6 {
			usage()
			os.Exit(1)
		}
		chat := openChat(client, 2)
		from, text := os.Args[4], os.Args[5]
		sig := chit.Signature(chat.ID, from, userSecret())
		_, err := chat.Post(ctx, text, from, sig)
		exitOnError(err)

	case "delete":
		if len(os.Args) < 5 {
			usage()
			os.Exit(1)
		}
		chat := openChat(client, 2)
		chat.Secret = os.Args[4]
		exitOnError(chat.Delete(ctx))

	default:
		usage()
		os.Exit(1)
	}
}

// openChat builds a chat handle from argv[i] (id) and argv[i+1] (key).
func openChat(client *chit.Client, i int) *chit.Chat {
	if len(os.Args) < i+2 {
		usage()
		os.Exit(1)
	}
	key, err := chit.ChatKeyFromBase64(os.Args[i+1])
	exitOnError(err)
	chat, err := client.OpenChat(os.Args[i], key)
	exitOnError(err)
	return chat
}

// userSecret is the stable per-user secret behind the pseudonym signature.
func userSecret() string {
	if s := os.Getenv("CHIT_SECRET"); s != "" {
		return s
	}
	host, _ := os.Hostname()
	return host
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  chit create
  chit read   <id> <key>
  chit post   <id> <key> <from> <text>
  chit delete <id> <key> <secret>

environment:
  CHIT_URL     server base URL (default http://localhost:8080)
  CHIT_SECRET  user secret for the pseudonym signature`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
