//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/cloo-solutions/coursetutor/internal/api/handlers"
	"github.com/cloo-solutions/coursetutor/internal/chatmemory"
	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/extract"
	"github.com/cloo-solutions/coursetutor/internal/jobs"
	"github.com/cloo-solutions/coursetutor/internal/metrics"
	tutoropenai "github.com/cloo-solutions/coursetutor/internal/openai"
	"github.com/cloo-solutions/coursetutor/internal/repository"
	"github.com/cloo-solutions/coursetutor/internal/server"
	"github.com/cloo-solutions/coursetutor/internal/service"
	"github.com/cloo-solutions/coursetutor/internal/storage"
	"github.com/cloo-solutions/coursetutor/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const embeddingDimensions = 1536

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T               *testing.T
	Ctx             context.Context
	PostgresC       *testutil.PostgresContainer
	RustFSC         *testutil.RustFSContainer
	Pool            *pgxpool.Pool
	ServerURL       string
	ServerCloser    func()
	Auth            *service.AuthService
	BinaryDir       string
	InstructorToken string
	StudentToken    string
	HTTPClient      *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	llm := httptest.NewServer(&fakeOpenAI{})

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	var closeServer func()
	env.ServerURL, env.Auth, closeServer = startServer(t, pool, s3Client, llm.URL+"/v1", port)
	env.ServerCloser = func() {
		closeServer()
		llm.Close()
	}

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Bootstrap creates one instructor and one student with API keys
func (e *E2ETestEnv) Bootstrap() {
	e.InstructorToken = e.createUser("prof", "prof-password", domain.UserRoleInstructor)
	e.StudentToken = e.createUser("ana", "ana-password", domain.UserRoleStudent)
}

func (e *E2ETestEnv) createUser(username, password string, role domain.UserRole) string {
	user, err := e.Auth.CreateUser(e.Ctx, username, password, role)
	if err != nil {
		e.T.Fatalf("failed to create user %s: %v", username, err)
	}
	token, err := e.Auth.CreateAPIKey(e.Ctx, user.ID, "e2e")
	if err != nil {
		e.T.Fatalf("failed to create API key for %s: %v", username, err)
	}
	return token
}

// BuildBinaries builds the tutor and tutord binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "coursetutor-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"tutord", "tutor"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunTutor runs the tutor CLI with the given API key
func (e *E2ETestEnv) RunTutor(token, input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "tutor"), args...)
	cmd.Dir = e.BinaryDir
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	cmd.Env = append(os.Environ(),
		"HOME="+e.BinaryDir,
		"XDG_CONFIG_HOME="+filepath.Join(e.BinaryDir, ".config"),
		fmt.Sprintf("TUTOR_API_KEY=%s", token),
		fmt.Sprintf("TUTOR_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

func (r *APIResponse) Decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("failed to decode response data: %v", err)
	}
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, authToken)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPut, path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")
	return e.send(req)
}

func (e *E2ETestEnv) send(req *http.Request) (*APIResponse, error) {
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return &APIResponse{StatusCode: resp.StatusCode}, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}
	return &apiResp, nil
}

// UploadDocument posts content as a multipart document upload
func (e *E2ETestEnv) UploadDocument(courseID, filename, contentType string, content []byte, authToken string) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+"/courses/"+courseID+"/documents", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req)
}

// WaitForDocument polls until the document leaves Processing
func (e *E2ETestEnv) WaitForDocument(courseID, docID string) string {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := e.Get("/courses/"+courseID+"/documents/"+docID, e.InstructorToken)
		if err == nil {
			var doc struct {
				Status string `json:"status"`
			}
			resp.Decode(e.T, &doc)
			if doc.Status != string(domain.DocumentStatusProcessing) {
				return doc.Status
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("document %s still processing after 30s", docID)
	return ""
}

// startServer wires the services the way tutord serve does, with the model
// endpoint pointed at llmURL.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, llmURL string, port int) (string, *service.AuthService, func()) {
	ctx := context.Background()
	log := zap.NewNop()
	m := metrics.New()

	courseRepo := repository.NewCourseRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	enrollmentRepo := repository.NewEnrollmentRepository(pool)
	gateLogRepo := repository.NewGateLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(repository.NewUserRepository(pool), repository.NewAPIKeyRepository(pool), uuidGen).
		WithBcryptCost(4)

	ai := tutoropenai.NewClientWithConfig(tutoropenai.Config{
		APIKey:              "test-key",
		BaseURL:             llmURL,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: embeddingDimensions,
		ChatModel:           "test-model",
	})
	queryEmbedder, err := service.NewCachedEmbedder(ai, 128)
	if err != nil {
		t.Fatalf("failed to create query embedder: %v", err)
	}
	store, err := service.NewKnowledgeStore(repository.NewPassageRepository(pool), ai, queryEmbedder, uuidGen,
		service.DefaultKnowledgeStoreConfig(), m, log)
	if err != nil {
		t.Fatalf("failed to create knowledge store: %v", err)
	}
	memory, err := chatmemory.NewInProcess(5, 0)
	if err != nil {
		t.Fatalf("failed to create chat memory: %v", err)
	}

	workers := jobs.NewPool(2, 16, m, log)
	ingestionSvc := service.NewIngestionService(
		courseRepo, documentRepo, s3Client, extract.NewExtractor(), ai, store, workers,
		service.IngestionConfig{Chunk: service.DefaultChunkConfig(), StaleAfter: time.Minute},
		log,
	)

	access := service.NewCourseAccess(courseRepo, enrollmentRepo)
	courseSvc := service.NewCourseService(courseRepo, documentRepo, enrollmentRepo, store, s3Client, log)
	documentSvc := service.NewDocumentService(courseRepo, access, documentRepo, store, s3Client, txRunner, log)
	chatSvc := service.NewChatService(service.ChatDeps{
		Access:        access,
		Documents:     documentRepo,
		Conversations: conversationRepo,
		GateLogs:      gateLogRepo,
		Store:         store,
		Gate:          service.NewRelevanceGate(store, 0.2, m, log),
		Guard:         service.NewHomeworkGuard(store, ai, 0.5, m, log),
		Memory:        memory,
		Completer:     ai,
		RetrievalK:    3,
		UUIDGen:       uuidGen,
		Logger:        log,
	})

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   authSvc,
		AuthHandler:     handlers.NewAuthHandler(authSvc),
		CourseHandler:   handlers.NewCourseHandler(
			courseSvc,
			service.NewEnrollmentService(courseRepo, enrollmentRepo, log),
			service.NewQuizService(access, ai, log),
			service.NewReportService(courseRepo, gateLogRepo),
		),
		DocumentHandler: handlers.NewDocumentHandler(documentSvc, ingestionSvc, s3Client, nil, 10<<20),
		ChatHandler:     handlers.NewChatHandler(chatSvc),
		Logger:          log,
		Metrics:         m,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, authSvc, func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		workers.Shutdown(shutdownCtx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// fakeOpenAI is a deterministic stand-in for the model endpoints.
// Embeddings are hashed bags of words of four letters or more, so texts
// sharing content words land close together. Chat replies are chosen by
// the system prompt.
type fakeOpenAI struct{}

const (
	fakeTutorReply = "Mitochondria produce ATP through cellular respiration."
	fakeSummary    = "Notes on mitochondria and cellular respiration."
	fakeQuiz       = `Q: What do mitochondria produce?
A. Glucose
B. ATP
C. DNA
D. Oxygen
Answer: B

Q: Which process happens in mitochondria?
A. Photosynthesis
B. Transcription
C. Cellular respiration
D. Osmosis
Answer: C`
)

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/embeddings":
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]openai.Embedding, len(req.Input))
		for i, text := range req.Input {
			data[i] = openai.Embedding{Object: "embedding", Embedding: bagOfWords(text), Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.EmbeddingResponse{Object: "list", Data: data})

	case "/v1/chat/completions":
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reply := chatReply(req.Messages)
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, word := range strings.SplitAfter(reply, " ") {
				payload, _ := json.Marshal(openai.ChatCompletionStreamResponse{
					Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: word}}},
				})
				fmt.Fprintf(w, "data: %s\n\n", payload)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply}}},
		})

	default:
		http.NotFound(w, r)
	}
}

func chatReply(messages []openai.ChatCompletionMessage) string {
	if len(messages) == 0 {
		return ""
	}
	system := messages[0].Content
	last := messages[len(messages)-1].Content
	switch {
	case strings.HasPrefix(system, "Summarize"):
		return fakeSummary
	case strings.HasPrefix(system, "Rate how relevant"):
		_, passage, _ := strings.Cut(last, "Passage:")
		if strings.Contains(strings.ToLower(passage), "homework") {
			return "0.9"
		}
		return "0.1"
	case strings.Contains(system, "multiple-choice"):
		return fakeQuiz
	default:
		return fakeTutorReply
	}
}

func bagOfWords(text string) []float32 {
	vec := make([]float32, embeddingDimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if len(w) < 4 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%embeddingDimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
