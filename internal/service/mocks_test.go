package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/pagination"
	"github.com/stretchr/testify/mock"
)

// MockUUIDGenerator returns the given ids in order, then numbered fallbacks.
type MockUUIDGenerator struct {
	mu        sync.Mutex
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.callCount++ }()
	if m.callCount < len(m.uuids) {
		return m.uuids[m.callCount]
	}
	return fmt.Sprintf("uuid-%d", m.callCount)
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// wordEmbedder hashes each lower-cased word into a bucket, so texts sharing
// words have a positive cosine and disjoint texts score zero.
type wordEmbedder struct {
	dims int
}

func newWordEmbedder() *wordEmbedder { return &wordEmbedder{dims: 64} }

func (w *wordEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, w.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%uint32(w.dims)]++
	}
	return v, nil
}

type fakeCourseRepo struct {
	mu        sync.Mutex
	courses   map[string]*domain.Course
	entries   map[string][]domain.SummaryEntry
	createErr error
	deleteErr error
}

func newFakeCourseRepo(courses ...*domain.Course) *fakeCourseRepo {
	r := &fakeCourseRepo{courses: map[string]*domain.Course{}, entries: map[string][]domain.SummaryEntry{}}
	for _, c := range courses {
		r.courses[c.ID] = c
	}
	return r
}

func (r *fakeCourseRepo) Create(ctx context.Context, c *domain.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.courses[c.ID]; ok {
		return domain.ErrCourseAlreadyExists
	}
	cp := *c
	r.courses[c.ID] = &cp
	return nil
}

func (r *fakeCourseRepo) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	if !ok {
		return nil, domain.ErrCourseNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCourseRepo) List(ctx context.Context) ([]*domain.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Course
	for _, c := range r.courses {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCourseRepo) ListByInstructor(ctx context.Context, instructorID string) ([]*domain.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Course
	for _, c := range r.courses {
		if c.InstructorID == instructorID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCourseRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.courses[id]; !ok {
		return domain.ErrCourseNotFound
	}
	delete(r.courses, id)
	delete(r.entries, id)
	return nil
}

func (r *fakeCourseRepo) AddSummaryEntry(ctx context.Context, courseID string, entry domain.SummaryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[courseID] = append(r.entries[courseID], entry)
	return nil
}

func (r *fakeCourseRepo) RemoveSummaryEntry(ctx context.Context, courseID, documentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[courseID]
	for i, e := range entries {
		if e.DocumentID == documentID {
			r.entries[courseID] = append(entries[:i:i], entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCourseRepo) ListSummaryEntries(ctx context.Context, courseID string) ([]domain.SummaryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SummaryEntry(nil), r.entries[courseID]...), nil
}

func (r *fakeCourseRepo) UpdateSummary(ctx context.Context, courseID, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[courseID]
	if !ok {
		return domain.ErrCourseNotFound
	}
	c.Summary = summary
	return nil
}

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: map[string]*domain.Document{}}
}

func (r *fakeDocumentRepo) get(id string) *domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (r *fakeDocumentRepo) put(d *domain.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.docs[d.ID] = &cp
}

func (r *fakeDocumentRepo) Create(ctx context.Context, d *domain.Document) error {
	r.put(d)
	return nil
}

func (r *fakeDocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if d := r.get(id); d != nil {
		return d, nil
	}
	return nil, domain.ErrDocumentNotFound
}

func (r *fakeDocumentRepo) ListByCourse(ctx context.Context, courseID string) ([]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Document
	for _, d := range r.docs {
		if d.CourseID == courseID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) ListByCourseWithCursor(ctx context.Context, courseID string, availableOnly bool, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error) {
	all, _ := r.ListByCourse(ctx, courseID)
	var items []*domain.Document
	for _, d := range all {
		if availableOnly && !d.Available {
			continue
		}
		items = append(items, d)
	}
	return &DocumentPageResult{Items: items}, nil
}

func (r *fakeDocumentRepo) transition(id string, fn func(d *domain.Document)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.Status != domain.DocumentStatusProcessing {
		return domain.ErrDocumentNotFound
	}
	fn(d)
	return nil
}

func (r *fakeDocumentRepo) MarkCompleted(ctx context.Context, id, text, summary string, isHomework bool) error {
	return r.transition(id, func(d *domain.Document) {
		d.Status = domain.DocumentStatusCompleted
		d.ExtractedText = text
		d.Summary = summary
		d.IsHomework = isHomework
	})
}

func (r *fakeDocumentRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return r.transition(id, func(d *domain.Document) {
		d.Status = domain.DocumentStatusFailed
		d.FailureReason = reason
	})
}

func (r *fakeDocumentRepo) SetAvailability(ctx context.Context, id string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	d.Available = available
	return nil
}

func (r *fakeDocumentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *fakeDocumentRepo) ListHomeworkIDs(ctx context.Context, courseID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.docs {
		if d.CourseID == courseID && d.IsHomework && d.Available {
			out = append(out, d.ID)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) FailStaleProcessing(ctx context.Context, before time.Time, reason string) ([]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Document
	for _, d := range r.docs {
		if d.Status == domain.DocumentStatusProcessing && d.UpdatedAt.Before(before) {
			d.Status = domain.DocumentStatusFailed
			d.FailureReason = reason
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeConversationRepo struct {
	mu    sync.Mutex
	convs map[string]*domain.Conversation
	saves []domain.ConversationStatus
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{convs: map[string]*domain.Conversation{}}
}

func (r *fakeConversationRepo) store(c *domain.Conversation) {
	c.StoredMessages = len(c.Messages)
	cp := *c
	cp.Messages = append([]domain.Message(nil), c.Messages...)
	r.convs[c.ID] = &cp
	r.saves = append(r.saves, c.Status)
}

func (r *fakeConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[c.ID]; ok {
		return domain.NewDomainError(domain.ErrCodeAlreadyExists, "conversation exists")
	}
	r.store(c)
	return nil
}

func (r *fakeConversationRepo) Update(ctx context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.convs[c.ID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	if len(stored.Messages) != c.StoredMessages {
		return domain.ErrConversationChanged
	}
	r.store(c)
	return nil
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	cp := *c
	cp.Messages = append([]domain.Message(nil), c.Messages...)
	return &cp, nil
}

func (r *fakeConversationRepo) ListByOwner(ctx context.Context, courseID, userID string, cursor *pagination.Cursor, limit int) (*ConversationPageResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*domain.Conversation
	for _, c := range r.convs {
		if c.CourseID == courseID && c.UserID == userID {
			items = append(items, c)
		}
	}
	return &ConversationPageResult{Items: items}, nil
}

func (r *fakeConversationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[id]; !ok {
		return domain.ErrConversationNotFound
	}
	delete(r.convs, id)
	return nil
}

type fakeBlobStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	putErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: map[string][]byte{}}
}

func (b *fakeBlobStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (b *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, domain.ErrPayloadNotFound
	}
	return data, nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

// textExtractor treats the payload as UTF-8 text split on form feeds.
type textExtractor struct {
	err   error
	panic bool
}

func (e textExtractor) Extract(name, contentType string, payload []byte) ([]string, error) {
	if e.panic {
		panic("extractor exploded")
	}
	if e.err != nil {
		return nil, e.err
	}
	return strings.Split(string(payload), "\f"), nil
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (s fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return s.summary, s.err
}

// inlineSubmitter runs tasks synchronously and keeps their errors.
type inlineSubmitter struct {
	mu   sync.Mutex
	errs []error
}

func (s *inlineSubmitter) Submit(ctx context.Context, name string, run func(context.Context) error) error {
	err := run(context.Background())
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	return nil
}

// deferredSubmitter queues tasks until Run is called.
type deferredSubmitter struct {
	tasks []func(context.Context) error
}

func (s *deferredSubmitter) Submit(ctx context.Context, name string, run func(context.Context) error) error {
	s.tasks = append(s.tasks, run)
	return nil
}

func (s *deferredSubmitter) Run() []error {
	var errs []error
	for _, t := range s.tasks {
		errs = append(errs, t(context.Background()))
	}
	s.tasks = nil
	return errs
}

type busySubmitter struct{}

func (busySubmitter) Submit(ctx context.Context, name string, run func(context.Context) error) error {
	return context.DeadlineExceeded
}

// fakeCompleter records prompts and answers with a fixed reply after delay.
type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	prompts [][]domain.Message
}

func (c *fakeCompleter) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, append([]domain.Message(nil), messages...))
	return c.reply, c.err
}

func (c *fakeCompleter) CompleteStream(ctx context.Context, messages []domain.Message, onDelta func(string) error) (string, error) {
	text, err := c.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(text, " ") {
		if err := onDelta(word); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (c *fakeCompleter) lastPrompt() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return nil
	}
	return c.prompts[len(c.prompts)-1]
}

// fixedScorer returns the score registered for a passage, or 0.
type fixedScorer struct {
	scores map[string]float64
	err    error
}

func (s fixedScorer) ScoreRelevance(ctx context.Context, query, passage string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.scores[passage], nil
}

type MockGateLogRepository struct {
	mock.Mock
}

func (m *MockGateLogRepository) Create(ctx context.Context, l *domain.GateLog) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *MockGateLogRepository) Report(ctx context.Context, courseID string, since time.Time) (*domain.GateReport, error) {
	args := m.Called(ctx, courseID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GateReport), args.Error(1)
}

var (
	instructor = domain.Principal{UserID: "prof-1", Role: domain.UserRoleInstructor}
	otherProf  = domain.Principal{UserID: "prof-2", Role: domain.UserRoleInstructor}
	student    = domain.Principal{UserID: "student-1", Role: domain.UserRoleStudent}
)

func testCourse(id string) *domain.Course {
	return domain.NewCourse(id, "Biology 101", instructor.UserID, time.Now().UTC())
}

type fakeEnrollmentRepo struct {
	mu      sync.Mutex
	courses *fakeCourseRepo
	byUser  map[string]map[string]bool
}

func newFakeEnrollmentRepo(courses *fakeCourseRepo) *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{courses: courses, byUser: map[string]map[string]bool{}}
}

func (r *fakeEnrollmentRepo) enroll(courseID, userID string) {
	_, err := r.Create(context.Background(), domain.NewEnrollment(courseID, userID, time.Now().UTC()))
	if err != nil {
		panic(err)
	}
}

func (r *fakeEnrollmentRepo) Create(ctx context.Context, e *domain.Enrollment) (bool, error) {
	if _, err := r.courses.GetByID(ctx, e.CourseID); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[e.UserID] == nil {
		r.byUser[e.UserID] = map[string]bool{}
	}
	if r.byUser[e.UserID][e.CourseID] {
		return false, nil
	}
	r.byUser[e.UserID][e.CourseID] = true
	return true, nil
}

func (r *fakeEnrollmentRepo) Delete(ctx context.Context, courseID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.byUser[userID][courseID] {
		return domain.ErrEnrollmentNotFound
	}
	delete(r.byUser[userID], courseID)
	return nil
}

func (r *fakeEnrollmentRepo) Exists(ctx context.Context, courseID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byUser[userID][courseID], nil
}

func (r *fakeEnrollmentRepo) ListCourses(ctx context.Context, userID string) ([]*domain.Course, error) {
	ids, _ := r.ListCourseIDs(ctx, userID)
	var out []*domain.Course
	for _, id := range ids {
		c, err := r.courses.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) ListCourseIDs(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// enrolledAccess admits instructor as owner and student as enrolled in each course.
func enrolledAccess(courses *fakeCourseRepo, courseIDs ...string) (*CourseAccess, *fakeEnrollmentRepo) {
	enrollments := newFakeEnrollmentRepo(courses)
	for _, id := range courseIDs {
		enrollments.enroll(id, student.UserID)
	}
	return NewCourseAccess(courses, enrollments), enrollments
}
