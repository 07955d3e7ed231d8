package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type sourceView struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

type chatReply struct {
	ConversationID    string       `json:"conversation_id"`
	Title             string       `json:"title"`
	Status            string       `json:"status"`
	Reply             string       `json:"reply"`
	Answerable        bool         `json:"answerable"`
	HomeworkTriggered bool         `json:"homework_triggered"`
	TopScore          float64      `json:"top_score"`
	Sources           []sourceView `json:"sources"`
}

type chatOptions struct {
	conversationID string
	noStream       bool
	showSources    bool
}

func ChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat <course-id> [message]",
		Short: "Ask the course tutor a question",
		Long: `Send one message to the course tutor, or start an interactive session
when no message is given. Replies are streamed as they are generated unless
--no-stream is set.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			courseID := args[0]
			if wantJSON(cmd) {
				opts.noStream = true
			}

			if len(args) == 2 {
				reply, err := sendChat(c, courseID, args[1], opts)
				if err != nil {
					return err
				}
				return printReply(cmd, reply, opts)
			}
			return runChatSession(cmd, c, courseID, os.Stdin, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.conversationID, "conversation", "c", "", "Continue an existing conversation")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "Wait for the full reply instead of streaming")
	cmd.Flags().BoolVar(&opts.showSources, "sources", false, "Show the passages the reply was grounded on")

	cmd.AddCommand(conversationsCmd())

	return cmd
}

func runChatSession(cmd *cobra.Command, c *APIClient, courseID string, in io.Reader, opts chatOptions) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(stdout, "Type a question, or an empty line to quit.")
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			return nil
		}
		reply, err := sendChat(c, courseID, msg, opts)
		if err != nil {
			return err
		}
		opts.conversationID = reply.ConversationID
		if err := printReply(cmd, reply, opts); err != nil {
			return err
		}
	}
}

// sendChat runs one turn. While streaming, deltas are written to stdout as
// they arrive and the returned reply has Reply cleared so it is not printed
// twice.
func sendChat(c *APIClient, courseID, message string, opts chatOptions) (*chatReply, error) {
	path := "/courses/" + url.PathEscape(courseID) + "/chat"
	body := map[string]string{"conversation_id": opts.conversationID, "message": message}

	if opts.noStream {
		resp, err := c.Post(path, body)
		if err != nil {
			return nil, err
		}
		var reply chatReply
		if err := resp.Decode(&reply); err != nil {
			return nil, err
		}
		return &reply, nil
	}

	var (
		reply    *chatReply
		streamed bool
	)
	err := c.Stream(path, body, func(ev Event) error {
		switch ev.Name {
		case "delta":
			var d struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				return fmt.Errorf("failed to parse delta: %w", err)
			}
			fmt.Fprint(stdout, d.Text)
			streamed = true
		case "done":
			reply = &chatReply{}
			if err := json.Unmarshal(ev.Data, reply); err != nil {
				return fmt.Errorf("failed to parse reply: %w", err)
			}
		case "error":
			var e struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(ev.Data, &e)
			return fmt.Errorf("server error: %s", e.Error)
		}
		return nil
	})
	if streamed {
		fmt.Fprintln(stdout)
	}
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, fmt.Errorf("stream ended without a reply")
	}
	if streamed {
		reply.Reply = ""
	}
	return reply, nil
}

func printReply(cmd *cobra.Command, reply *chatReply, opts chatOptions) error {
	if wantJSON(cmd) {
		return printJSON(reply)
	}
	if reply.Reply != "" {
		fmt.Fprintln(stdout, reply.Reply)
	}
	if reply.HomeworkTriggered {
		fmt.Fprintln(stdout, "(homework policy applied: hints only)")
	}
	if opts.showSources && len(reply.Sources) > 0 {
		fmt.Fprintln(stdout, "\nSources:")
		for _, s := range reply.Sources {
			fmt.Fprintf(stdout, "  %s #%d (%.2f)\n", s.DocumentID, s.ChunkIndex, s.Score)
		}
	}
	if opts.conversationID == "" {
		fmt.Fprintf(stdout, "\nConversation: %s\n", reply.ConversationID)
	}
	return nil
}

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage your conversations in a course",
	}

	cmd.AddCommand(conversationsListCmd())
	cmd.AddCommand(conversationsShowCmd())
	cmd.AddCommand(conversationsDeleteCmd())

	return cmd
}

func conversationsPath(courseID string) string {
	return "/courses/" + url.PathEscape(courseID) + "/conversations"
}

func conversationsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <course-id>",
		Short: "List conversations, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Get(fmt.Sprintf("%s?limit=%d", conversationsPath(args[0]), limit))
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var page struct {
				Items []struct {
					ID        string `json:"id"`
					Title     string `json:"title"`
					Status    string `json:"status"`
					UpdatedAt string `json:"updated_at"`
				} `json:"items"`
			}
			if err := resp.Decode(&page); err != nil {
				return err
			}
			if len(page.Items) == 0 {
				fmt.Fprintln(stdout, "No conversations found")
				return nil
			}
			for _, conv := range page.Items {
				fmt.Fprintf(stdout, "  %s: %s [%s] %s\n", conv.ID, truncate(conv.Title, 40), conv.Status, conv.UpdatedAt)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")

	return cmd
}

func conversationsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <course-id> <conversation-id>",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Get(conversationsPath(args[0]) + "/" + url.PathEscape(args[1]))
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var conv struct {
				Title    string `json:"title"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			if err := resp.Decode(&conv); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "# %s\n", conv.Title)
			for _, m := range conv.Messages {
				fmt.Fprintf(stdout, "\n[%s]\n%s\n", m.Role, m.Content)
			}
			return nil
		},
	}
}

func conversationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <course-id> <conversation-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := c.Delete(conversationsPath(args[0]) + "/" + url.PathEscape(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Deleted conversation %s\n", args[1])
			return nil
		},
	}
}
