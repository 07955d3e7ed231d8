package domain

import "strings"

// QuizOptionLetters are the option labels, in order, every quiz question must carry.
var QuizOptionLetters = []string{"A", "B", "C", "D"}

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// QuizResult is the outcome of grading a set of answers.
type QuizResult struct {
	Total   int   `json:"total"`
	Correct int   `json:"correct"`
	Wrong   []int `json:"wrong,omitempty"`
}

// ParseQuiz reads the generator text format:
//
//	Q: question
//	A. option
//	B. option
//	C. option
//	D. option
//	Answer: B
//
// Questions without exactly four options or without a recognisable answer
// letter are dropped. The final question is flushed at end of input.
func ParseQuiz(text string) []QuizQuestion {
	var (
		questions []QuizQuestion
		current   *QuizQuestion
	)

	flush := func() {
		if current == nil {
			return
		}
		if len(current.Options) == len(QuizOptionLetters) && current.Answer != "" {
			questions = append(questions, *current)
		}
		current = nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "Q:"):
			flush()
			current = &QuizQuestion{Question: strings.TrimSpace(line[2:])}
		case current == nil:
			continue
		case isOptionLine(line):
			current.Options = append(current.Options, strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "Answer:"):
			current.Answer = answerLetter(strings.TrimSpace(line[len("Answer:"):]))
		}
	}
	flush()

	return questions
}

// FormatQuiz renders questions back into the generator text format.
func FormatQuiz(questions []QuizQuestion) string {
	var b strings.Builder
	for i, q := range questions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Q: " + q.Question + "\n")
		for j, opt := range q.Options {
			b.WriteString(QuizOptionLetters[j] + ". " + opt + "\n")
		}
		b.WriteString("Answer: " + q.Answer + "\n")
	}
	return b.String()
}

// GradeQuiz compares answers (one letter per question, by index) to the key.
func GradeQuiz(questions []QuizQuestion, answers []string) QuizResult {
	result := QuizResult{Total: len(questions)}
	for i, q := range questions {
		if i < len(answers) && answerLetter(answers[i]) == q.Answer {
			result.Correct++
			continue
		}
		result.Wrong = append(result.Wrong, i)
	}
	return result
}

func isOptionLine(line string) bool {
	if len(line) < 2 || line[1] != '.' {
		return false
	}
	for _, l := range QuizOptionLetters {
		if line[:1] == l {
			return true
		}
	}
	return false
}

// answerLetter accepts "B", "B.", "b" or "B. option text".
func answerLetter(s string) string {
	if s == "" {
		return ""
	}
	letter := strings.ToUpper(s[:1])
	for _, l := range QuizOptionLetters {
		if letter == l && (len(s) == 1 || s[1] == '.' || s[1] == ')' || s[1] == ' ') {
			return l
		}
	}
	return ""
}
