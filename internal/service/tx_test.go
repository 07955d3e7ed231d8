package service

import "context"

type testTxRepos struct {
	courses       CourseRepositoryInterface
	documents     DocumentRepositoryInterface
	conversations ConversationRepositoryInterface
}

func (t *testTxRepos) Courses() CourseRepositoryInterface {
	return t.courses
}

func (t *testTxRepos) Documents() DocumentRepositoryInterface {
	return t.documents
}

func (t *testTxRepos) Conversations() ConversationRepositoryInterface {
	return t.conversations
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
	err    error
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	if t.err != nil {
		return t.err
	}
	return fn(t.repos)
}
