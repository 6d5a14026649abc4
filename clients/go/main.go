// just-chat CLI - Command line client for just-chat
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mohitverma010602/just-chat/clients/go/justchat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("JUSTCHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := justchat.New(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "register":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: justchat register <username> <email> <password>")
			os.Exit(1)
		}
		user, err := client.Register(ctx, os.Args[2], os.Args[3], os.Args[2], os.Args[4])
		exitOnError(err)
		fmt.Printf("Registered as: %s (%s)\n", user.Username, user.ID)

	case "send":
		if len(os.Args) < 6 {
			fmt.Fprintln(os.Stderr, "Usage: justchat send <username> <password> <peer_id> <message>")
			os.Exit(1)
		}
		_, err := client.Login(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		session, err := client.Connect(ctx)
		exitOnError(err)
		defer session.Close()

		exitOnError(session.Send(os.Args[4], os.Args[5]))

		// Wait for the echo so we learn the message ID.
		deadline := time.After(5 * time.Second)
		for {
			select {
			case frame, ok := <-session.Frames():
				if !ok {
					exitOnError(session.Err())
					return
				}
				if frame.Type == "error" {
					fmt.Fprintln(os.Stderr, "Error:", frame.Reason)
					os.Exit(1)
				}
				if frame.Type == "message" && frame.Message != nil {
					fmt.Printf("Sent: %s\n", frame.Message.ID)
					return
				}
			case <-deadline:
				fmt.Fprintln(os.Stderr, "Timed out waiting for confirmation")
				os.Exit(1)
			}
		}

	case "listen":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: justchat listen <username> <password>")
			os.Exit(1)
		}
		_, err := client.Login(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		session, err := client.Connect(ctx)
		exitOnError(err)
		defer session.Close()

		fmt.Println("Listening... (Ctrl-C to quit)")
		for frame := range session.Frames() {
			switch frame.Type {
			case "message":
				if frame.Message == nil {
					continue
				}
				ts := frame.Message.CreatedAt.Format("2006-01-02 15:04:05")
				fmt.Printf("[%s] %s: %s\n", ts, shortID(frame.Message.SenderID), frame.Message.Content)
				_ = session.AckDelivered(frame.Message.ID)
			case "status":
				fmt.Printf("-- message %s is now %s\n", frame.MessageID, frame.Status)
			case "presence":
				state := "offline"
				if frame.Online != nil && *frame.Online {
					state = "online"
				}
				fmt.Printf("-- %s is %s\n", shortID(frame.UserID), state)
			case "error":
				fmt.Fprintln(os.Stderr, "Error:", frame.Reason)
			}
		}
		exitOnError(session.Err())

	case "history":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: justchat history <username> <password> <peer_id>")
			os.Exit(1)
		}
		_, err := client.Login(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		messages, err := client.History(ctx, os.Args[4], 20)
		exitOnError(err)
		for i := len(messages) - 1; i >= 0; i-- {
			msg := messages[i]
			ts := msg.CreatedAt.Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s: %s (%s)\n", ts, shortID(msg.SenderID), msg.Content, msg.Status)
		}

	case "who":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: justchat who <username> <password> <user_id>")
			os.Exit(1)
		}
		_, err := client.Login(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		user, err := client.GetUser(ctx, os.Args[4])
		exitOnError(err)
		printJSON(user)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`just-chat CLI - realtime one-to-one messaging

Usage: justchat <command> [options]

Commands:
  register <username> <email> <password>       Create an account
  send <username> <password> <peer_id> <msg>   Send a message
  listen <username> <password>                 Receive messages live
  history <username> <password> <peer_id>      Show conversation history
  who <username> <password> <user_id>          Look up a user profile

Environment:
  JUSTCHAT_URL   Server URL (default: http://localhost:8080)`)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
