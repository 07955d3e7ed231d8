package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/coursetutor/internal/cli"
	"github.com/cloo-solutions/coursetutor/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "tutor",
		Short: "Course tutor CLI - ask questions about your course material",
		Long: `The tutor CLI talks to a course tutor server: instructors manage courses
and documents, students chat with the tutor and take quizzes.

Environment variables:
  TUTOR_API_KEY   API key for authentication
  TUTOR_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AuthCmd())
	rootCmd.AddCommand(client.CourseCmd())
	rootCmd.AddCommand(client.DocumentCmd())
	rootCmd.AddCommand(client.ChatCmd())
	rootCmd.AddCommand(client.QuizCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
