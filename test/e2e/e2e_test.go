//go:build e2e

package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lectureNotes = `Lecture 3: The cell.
Mitochondria produce ATP through cellular respiration. The mitochondria is the powerhouse of the cell.
Ribosomes assemble proteins from amino acids.`

	homeworkSheet = `Homework 2. Explain how mitochondria produce energy for the cell.
Submit your answers before the due date.`
)

type documentView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Available  bool   `json:"available"`
	IsHomework bool   `json:"is_homework"`
	Summary    string `json:"summary"`
}

type chatView struct {
	ConversationID    string `json:"conversation_id"`
	Title             string `json:"title"`
	Reply             string `json:"reply"`
	Answerable        bool   `json:"answerable"`
	HomeworkTriggered bool   `json:"homework_triggered"`
	Sources           []struct {
		DocumentID string `json:"document_id"`
	} `json:"sources"`
}

// seedCourse creates a course with one ingested, published lecture document
func seedCourse(t *testing.T, env *E2ETestEnv, courseID string) documentView {
	t.Helper()
	_, err := env.Post("/courses", map[string]string{"id": courseID, "name": "Biology 101"}, env.InstructorToken)
	require.NoError(t, err)

	resp, err := env.UploadDocument(courseID, "lecture3.txt", "text/plain", []byte(lectureNotes), env.InstructorToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var doc documentView
	resp.Decode(t, &doc)
	require.Equal(t, "Completed", env.WaitForDocument(courseID, doc.ID))

	_, err = env.Put("/courses/"+courseID+"/documents/"+doc.ID+"/availability", map[string]bool{"available": true}, env.InstructorToken)
	require.NoError(t, err)

	resp, err = env.Post("/courses/"+courseID+"/enroll", nil, env.StudentToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	return doc
}

func TestE2E_Auth(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	t.Run("login returns a working token", func(t *testing.T) {
		resp, err := env.Post("/auth/login", map[string]string{"username": "ana", "password": "ana-password"}, "")
		require.NoError(t, err)

		var login struct {
			Token string `json:"token"`
			User  struct {
				Role string `json:"role"`
			} `json:"user"`
		}
		resp.Decode(t, &login)
		assert.True(t, strings.HasPrefix(login.Token, "ctu_"))
		assert.Len(t, login.Token, 68)
		assert.Equal(t, "student", login.User.Role)

		me, err := env.Get("/auth/me", login.Token)
		require.NoError(t, err)
		var principal struct {
			Role string `json:"role"`
		}
		me.Decode(t, &principal)
		assert.Equal(t, "student", principal.Role)
	})

	t.Run("wrong password returns 401", func(t *testing.T) {
		resp, err := env.Post("/auth/login", map[string]string{"username": "ana", "password": "nope"}, "")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid API key returns 401", func(t *testing.T) {
		_, err := env.Get("/courses", "ctu_invalid")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("students cannot create courses", func(t *testing.T) {
		resp, err := env.Post("/courses", map[string]string{"name": "Nope"}, env.StudentToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestE2E_DocumentLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	doc := seedCourse(t, env, "bio-101")

	t.Run("ingested document carries a summary", func(t *testing.T) {
		resp, err := env.Get("/courses/bio-101/documents/"+doc.ID, env.InstructorToken)
		require.NoError(t, err)

		var got documentView
		resp.Decode(t, &got)
		assert.Equal(t, "Completed", got.Status)
		assert.True(t, got.Available)
		assert.False(t, got.IsHomework)
		assert.Equal(t, fakeSummary, got.Summary)
	})

	t.Run("course summary is built from document summaries", func(t *testing.T) {
		resp, err := env.Get("/courses/bio-101", env.StudentToken)
		require.NoError(t, err)

		var course struct {
			Summary string `json:"summary"`
		}
		resp.Decode(t, &course)
		assert.Contains(t, course.Summary, fakeSummary)
	})

	t.Run("homework documents are classified", func(t *testing.T) {
		resp, err := env.UploadDocument("bio-101", "hw2.txt", "text/plain", []byte(homeworkSheet), env.InstructorToken)
		require.NoError(t, err)

		var hw documentView
		resp.Decode(t, &hw)
		require.Equal(t, "Completed", env.WaitForDocument("bio-101", hw.ID))

		resp, err = env.Get("/courses/bio-101/documents/"+hw.ID, env.InstructorToken)
		require.NoError(t, err)
		resp.Decode(t, &hw)
		assert.True(t, hw.IsHomework)
		assert.False(t, hw.Available)
	})

	t.Run("students only see available documents", func(t *testing.T) {
		resp, err := env.Get("/courses/bio-101/documents", env.StudentToken)
		require.NoError(t, err)

		var page struct {
			Items []documentView `json:"items"`
		}
		resp.Decode(t, &page)
		require.Len(t, page.Items, 1)
		assert.Equal(t, doc.ID, page.Items[0].ID)
	})

	t.Run("download returns the original bytes", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, env.ServerURL+"/courses/bio-101/documents/"+doc.ID+"/download", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+env.StudentToken)

		resp, err := env.HTTPClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, lectureNotes, string(body))
	})

	t.Run("unsupported file type fails ingestion", func(t *testing.T) {
		resp, err := env.UploadDocument("bio-101", "photo.png", "image/png", []byte{0x89, 'P', 'N', 'G'}, env.InstructorToken)
		require.NoError(t, err)

		var bad documentView
		resp.Decode(t, &bad)
		assert.Equal(t, "Failed", env.WaitForDocument("bio-101", bad.ID))

		_, err = env.Put("/courses/bio-101/documents/"+bad.ID+"/availability", map[string]bool{"available": true}, env.InstructorToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "409")
	})

	t.Run("delete removes the document", func(t *testing.T) {
		_, err := env.Delete("/courses/bio-101/documents/"+doc.ID, env.InstructorToken)
		require.NoError(t, err)

		resp, err := env.Get("/courses/bio-101/documents/"+doc.ID, env.InstructorToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestE2E_Chat(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	doc := seedCourse(t, env, "bio-101")
	var conversationID string

	t.Run("students must be enrolled to chat", func(t *testing.T) {
		_, err := env.Delete("/courses/bio-101/enroll", env.StudentToken)
		require.NoError(t, err)

		resp, err := env.Post("/courses/bio-101/chat", map[string]string{"message": "What do mitochondria produce?"}, env.StudentToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, err = env.Get("/courses?all=true", env.StudentToken)
		require.NoError(t, err)
		var catalog []struct {
			ID       string `json:"id"`
			Enrolled bool   `json:"enrolled"`
		}
		resp.Decode(t, &catalog)
		require.Len(t, catalog, 1)
		assert.False(t, catalog[0].Enrolled)

		resp, err = env.Post("/courses/bio-101/enroll", nil, env.StudentToken)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("on-topic question is answered from course material", func(t *testing.T) {
		resp, err := env.Post("/courses/bio-101/chat", map[string]string{"message": "What do mitochondria produce?"}, env.StudentToken)
		require.NoError(t, err)

		var reply chatView
		resp.Decode(t, &reply)
		assert.True(t, reply.Answerable)
		assert.False(t, reply.HomeworkTriggered)
		assert.Equal(t, fakeTutorReply, reply.Reply)
		assert.Equal(t, "What do mitochondria produce?", reply.Title)
		require.NotEmpty(t, reply.Sources)
		assert.Equal(t, doc.ID, reply.Sources[0].DocumentID)
		conversationID = reply.ConversationID
	})

	t.Run("off-topic question is rejected by the gate", func(t *testing.T) {
		resp, err := env.Post("/courses/bio-101/chat", map[string]string{
			"conversation_id": conversationID,
			"message":         "What is the capital of France?",
		}, env.StudentToken)
		require.NoError(t, err)

		var reply chatView
		resp.Decode(t, &reply)
		assert.False(t, reply.Answerable)
		assert.Empty(t, reply.Sources)
		assert.Equal(t, conversationID, reply.ConversationID)
	})

	t.Run("streamed chat emits deltas then done", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, env.ServerURL+"/courses/bio-101/chat?stream=true",
			strings.NewReader(`{"message":"What do mitochondria produce?"}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+env.StudentToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := env.HTTPClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		body := string(raw)
		assert.Contains(t, body, "event: delta")
		assert.Contains(t, body, "event: done")
		assert.Less(t, strings.Index(body, "event: delta"), strings.Index(body, "event: done"))
	})

	t.Run("homework question gets the homework policy", func(t *testing.T) {
		resp, err := env.UploadDocument("bio-101", "hw2.txt", "text/plain", []byte(homeworkSheet), env.InstructorToken)
		require.NoError(t, err)
		var hw documentView
		resp.Decode(t, &hw)
		require.Equal(t, "Completed", env.WaitForDocument("bio-101", hw.ID))
		_, err = env.Put("/courses/bio-101/documents/"+hw.ID+"/availability", map[string]bool{"available": true}, env.InstructorToken)
		require.NoError(t, err)

		resp, err = env.Post("/courses/bio-101/chat", map[string]string{"message": "How do mitochondria produce energy for the cell?"}, env.StudentToken)
		require.NoError(t, err)

		var reply chatView
		resp.Decode(t, &reply)
		assert.True(t, reply.Answerable)
		assert.True(t, reply.HomeworkTriggered)
	})

	t.Run("conversation history is stored", func(t *testing.T) {
		resp, err := env.Get("/courses/bio-101/conversations/"+conversationID, env.StudentToken)
		require.NoError(t, err)

		var conv struct {
			Status   string `json:"status"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		resp.Decode(t, &conv)
		require.Len(t, conv.Messages, 4)
		assert.Equal(t, "user", conv.Messages[0].Role)
		assert.Equal(t, "assistant", conv.Messages[1].Role)
		assert.Equal(t, "Updated", conv.Status)
	})

	t.Run("other users cannot read the conversation", func(t *testing.T) {
		resp, err := env.Get("/courses/bio-101/conversations/"+conversationID, env.InstructorToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})


	t.Run("report counts gate outcomes", func(t *testing.T) {
		resp, err := env.Get("/courses/bio-101/report", env.InstructorToken)
		require.NoError(t, err)

		var report struct {
			Turns             int `json:"turns"`
			Answerable        int `json:"answerable"`
			RejectedSemantic  int `json:"rejected_semantic"`
			HomeworkTriggered int `json:"homework_triggered"`
		}
		resp.Decode(t, &report)
		assert.Equal(t, 4, report.Turns)
		assert.Equal(t, 3, report.Answerable)
		assert.Equal(t, 1, report.RejectedSemantic)
		assert.Equal(t, 1, report.HomeworkTriggered)
	})

	t.Run("students cannot read the report", func(t *testing.T) {
		resp, err := env.Get("/courses/bio-101/report", env.StudentToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestE2E_Quiz(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()
	seedCourse(t, env, "bio-101")

	resp, err := env.Get("/courses/bio-101/quiz?count=2", env.StudentToken)
	require.NoError(t, err)

	var questions []json.RawMessage
	resp.Decode(t, &questions)
	require.Len(t, questions, 2)

	resp, err = env.Post("/courses/bio-101/quiz/grade", map[string]any{
		"questions": questions,
		"answers":   []string{"B", "A"},
	}, env.StudentToken)
	require.NoError(t, err)

	var result struct {
		Total   int   `json:"total"`
		Correct int   `json:"correct"`
		Wrong   []int `json:"wrong"`
	}
	resp.Decode(t, &result)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Correct)
	assert.Equal(t, []int{1}, result.Wrong)
}

func TestE2E_CLI(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()
	env.BuildBinaries()

	t.Run("instructor creates a course", func(t *testing.T) {
		output, err := env.RunTutor(env.InstructorToken, "", "course", "create", "Chemistry", "--id", "chem-1")
		require.NoError(t, err, output)
		assert.Contains(t, output, "Created course chem-1")
	})

	t.Run("instructor uploads and publishes a document", func(t *testing.T) {
		path := filepath.Join(env.BinaryDir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte(lectureNotes), 0o600))

		output, err := env.RunTutor(env.InstructorToken, "", "doc", "upload", "chem-1", path, "--quiet", "--output")
		require.NoError(t, err, output)

		var doc documentView
		require.NoError(t, json.Unmarshal([]byte(output), &doc))
		require.Equal(t, "Completed", env.WaitForDocument("chem-1", doc.ID))

		output, err = env.RunTutor(env.InstructorToken, "", "doc", "publish", "chem-1", doc.ID)
		require.NoError(t, err, output)
		assert.Contains(t, output, "[available]")
	})

	t.Run("student enrolls", func(t *testing.T) {
		output, err := env.RunTutor(env.StudentToken, "", "course", "list", "--all")
		require.NoError(t, err, output)
		assert.Contains(t, output, "chem-1")
		assert.Contains(t, output, "[not enrolled]")

		output, err = env.RunTutor(env.StudentToken, "", "course", "enroll", "chem-1")
		require.NoError(t, err, output)
		assert.Contains(t, output, "Enrolled in chem-1")

		output, err = env.RunTutor(env.StudentToken, "", "course", "list")
		require.NoError(t, err, output)
		assert.Contains(t, output, "chem-1")
	})

	t.Run("student chats without streaming", func(t *testing.T) {
		output, err := env.RunTutor(env.StudentToken, "", "chat", "chem-1", "What do mitochondria produce?", "--no-stream")
		require.NoError(t, err, output)
		assert.Contains(t, output, fakeTutorReply)
		assert.Contains(t, output, "Conversation:")
	})

	t.Run("student chats with streaming", func(t *testing.T) {
		output, err := env.RunTutor(env.StudentToken, "", "chat", "chem-1", "What do mitochondria produce?")
		require.NoError(t, err, output)
		assert.Contains(t, output, fakeTutorReply)
	})

	t.Run("student lists conversations", func(t *testing.T) {
		output, err := env.RunTutor(env.StudentToken, "", "chat", "conversations", "list", "chem-1")
		require.NoError(t, err, output)
		assert.Contains(t, output, "What do mitochondria produce?")
	})

	t.Run("student takes a quiz", func(t *testing.T) {
		output, err := env.RunTutor(env.StudentToken, "B\nC\n", "quiz", "chem-1", "--count", "2")
		require.NoError(t, err, output)
		assert.Contains(t, output, "Score: 2/2")
	})

	t.Run("student cannot delete the course", func(t *testing.T) {
		output, err := env.RunTutor(env.StudentToken, "", "course", "delete", "chem-1")
		require.Error(t, err)
		assert.Contains(t, output, "403")
	})
}
