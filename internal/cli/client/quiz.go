package client

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type quizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

type quizResult struct {
	Total   int   `json:"total"`
	Correct int   `json:"correct"`
	Wrong   []int `json:"wrong"`
}

var optionLetters = []string{"A", "B", "C", "D"}

func QuizCmd() *cobra.Command {
	var (
		count    int
		showOnly bool
	)

	cmd := &cobra.Command{
		Use:   "quiz <course-id>",
		Short: "Take a multiple-choice quiz on the course material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			path := "/courses/" + url.PathEscape(args[0]) + "/quiz"

			resp, err := c.Get(fmt.Sprintf("%s?count=%d", path, count))
			if err != nil {
				return err
			}
			if wantJSON(cmd) && showOnly {
				return printRaw(resp)
			}
			var questions []quizQuestion
			if err := resp.Decode(&questions); err != nil {
				return err
			}
			if showOnly {
				printQuiz(questions)
				return nil
			}

			answers, err := askQuiz(questions, os.Stdin)
			if err != nil {
				return err
			}
			resp, err = c.Post(path+"/grade", map[string]any{"questions": questions, "answers": answers})
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var result quizResult
			if err := resp.Decode(&result); err != nil {
				return err
			}
			printQuizResult(questions, result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of questions")
	cmd.Flags().BoolVar(&showOnly, "show", false, "Print the questions with answers instead of taking the quiz")

	return cmd
}

func printQuiz(questions []quizQuestion) {
	for i, q := range questions {
		fmt.Fprintf(stdout, "%d. %s\n", i+1, q.Question)
		for j, opt := range q.Options {
			if j < len(optionLetters) {
				fmt.Fprintf(stdout, "   %s. %s\n", optionLetters[j], opt)
			}
		}
		if q.Answer != "" {
			fmt.Fprintf(stdout, "   Answer: %s\n", q.Answer)
		}
		fmt.Fprintln(stdout)
	}
}

// askQuiz prompts for one answer letter per question. Input that is not a
// valid letter is asked again; end of input leaves remaining answers blank.
func askQuiz(questions []quizQuestion, in io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(in)
	answers := make([]string, len(questions))

	for i, q := range questions {
		fmt.Fprintf(stdout, "%d. %s\n", i+1, q.Question)
		for j, opt := range q.Options {
			if j < len(optionLetters) {
				fmt.Fprintf(stdout, "   %s. %s\n", optionLetters[j], opt)
			}
		}
		for {
			fmt.Fprint(stdout, "Your answer: ")
			if !scanner.Scan() {
				fmt.Fprintln(stdout)
				return answers, scanner.Err()
			}
			a := strings.ToUpper(strings.TrimSpace(scanner.Text()))
			if isOptionLetter(a) {
				answers[i] = a
				break
			}
			fmt.Fprintln(stdout, "Please answer A, B, C or D.")
		}
		fmt.Fprintln(stdout)
	}
	return answers, nil
}

func isOptionLetter(s string) bool {
	for _, l := range optionLetters {
		if s == l {
			return true
		}
	}
	return false
}

func printQuizResult(questions []quizQuestion, result quizResult) {
	fmt.Fprintf(stdout, "Score: %d/%d\n", result.Correct, result.Total)
	for _, i := range result.Wrong {
		if i < 0 || i >= len(questions) {
			continue
		}
		fmt.Fprintf(stdout, "  %d. %s -> %s\n", i+1, truncate(questions[i].Question, 60), questions[i].Answer)
	}
}
