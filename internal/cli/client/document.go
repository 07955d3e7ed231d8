package client

import (
	"fmt"
	"mime"
	"net/url"
	"path/filepath"

	"github.com/spf13/cobra"
)

type documentView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
	Available     bool   `json:"available"`
	IsHomework    bool   `json:"is_homework"`
	SizeBytes     int64  `json:"size_bytes"`
	Summary       string `json:"summary"`
}

func documentsPath(courseID string) string {
	return "/courses/" + url.PathEscape(courseID) + "/documents"
}

func documentPath(courseID, docID string) string {
	return documentsPath(courseID) + "/" + url.PathEscape(docID)
}

func DocumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "doc",
		Aliases: []string{"document"},
		Short:   "Manage course documents",
	}

	cmd.AddCommand(docUploadCmd())
	cmd.AddCommand(docListCmd())
	cmd.AddCommand(docGetCmd())
	cmd.AddCommand(docAvailabilityCmd("publish", true))
	cmd.AddCommand(docAvailabilityCmd("unpublish", false))
	cmd.AddCommand(docDeleteCmd())
	cmd.AddCommand(docDownloadCmd())

	return cmd
}

func printDocument(d documentView) {
	state := d.Status
	if d.Status == "Completed" {
		if d.Available {
			state = "available"
		} else {
			state = "hidden"
		}
	}
	line := fmt.Sprintf("  %s: %s [%s]", d.ID, d.Name, state)
	if d.IsHomework {
		line += " homework"
	}
	if d.FailureReason != "" {
		line += " (" + d.FailureReason + ")"
	}
	fmt.Fprintln(stdout, line)
}

func docUploadCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <course-id> <file>",
		Short: "Upload a document; ingestion continues on the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			contentType := mime.TypeByExtension(filepath.Ext(args[1]))

			var progress ProgressFunc
			if !quiet && !wantJSON(cmd) {
				progress = func(current, total int64) {
					if total > 0 {
						fmt.Fprintf(stdout, "\rUploading... %d%%", current*100/total)
					}
				}
			}
			resp, err := c.UploadFile(documentsPath(args[0]), args[1], contentType, progress)
			if progress != nil {
				fmt.Fprintln(stdout)
			}
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var doc documentView
			if err := resp.Decode(&doc); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Uploaded %s as %s (status: %s)\n", doc.Name, doc.ID, doc.Status)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide upload progress")

	return cmd
}

func docListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list <course-id>",
		Short: "List documents with their ingestion status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			path := documentsPath(args[0])
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			resp, err := c.Get(path)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var page struct {
				Items   []documentView `json:"items"`
				Cursor  string         `json:"cursor"`
				HasMore bool           `json:"has_more"`
			}
			if err := resp.Decode(&page); err != nil {
				return err
			}
			if len(page.Items) == 0 {
				fmt.Fprintln(stdout, "No documents found")
				return nil
			}
			for _, d := range page.Items {
				printDocument(d)
			}
			if page.HasMore {
				fmt.Fprintf(stdout, "\nMore results available. Use --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func docGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <course-id> <document-id>",
		Short: "Show a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Get(documentPath(args[0], args[1]))
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var doc documentView
			if err := resp.Decode(&doc); err != nil {
				return err
			}
			printDocument(doc)
			if doc.Summary != "" {
				fmt.Fprintf(stdout, "\n%s\n", doc.Summary)
			}
			return nil
		},
	}
}

func docAvailabilityCmd(use string, available bool) *cobra.Command {
	short := "Make a document's passages available to students"
	if !available {
		short = "Hide a document's passages from students"
	}
	return &cobra.Command{
		Use:   use + " <course-id> <document-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Put(documentPath(args[0], args[1])+"/availability", map[string]bool{"available": available})
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var doc documentView
			if err := resp.Decode(&doc); err != nil {
				return err
			}
			printDocument(doc)
			return nil
		},
	}
}

func docDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <course-id> <document-id>",
		Short: "Delete a document and its passages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := c.Delete(documentPath(args[0], args[1])); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Deleted document %s\n", args[1])
			return nil
		},
	}
}

func docDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <course-id> <document-id>",
		Short: "Download the original file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if output == "" {
				resp, err := c.Get(documentPath(args[0], args[1]))
				if err != nil {
					return err
				}
				var doc documentView
				if err := resp.Decode(&doc); err != nil {
					return err
				}
				output = filepath.Base(doc.Name)
			}
			if err := c.Download(documentPath(args[0], args[1])+"/download", output, nil); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Saved %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "", "Output path (defaults to the document name)")

	return cmd
}
