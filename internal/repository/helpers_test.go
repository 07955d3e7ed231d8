//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const testEmbeddingDims = 1536

func setupTestDB(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return ctx, pool
}

func seedUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool, username string, role domain.UserRole) *domain.User {
	t.Helper()
	u := domain.NewUser(uuid.NewString(), username, role, "$2a$10$hash", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, NewUserRepository(pool).Create(ctx, u))
	return u
}

func seedCourse(ctx context.Context, t *testing.T, pool *pgxpool.Pool, id string) *domain.Course {
	t.Helper()
	owner := seedUser(ctx, t, pool, "prof-"+id, domain.UserRoleInstructor)
	c := domain.NewCourse(id, "Course "+id, owner.ID, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, NewCourseRepository(pool).Create(ctx, c))
	return c
}

func seedDocument(ctx context.Context, t *testing.T, pool *pgxpool.Pool, courseID string, createdAt time.Time) *domain.Document {
	t.Helper()
	d := domain.NewDocument(uuid.NewString(), courseID, "notes.pdf", "application/pdf", 42, createdAt.UTC().Truncate(time.Microsecond))
	d.BlobKey = "courses/" + courseID + "/documents/" + d.ID + "/notes.pdf"
	require.NoError(t, NewDocumentRepository(pool).Create(ctx, d))
	return d
}

// axis returns a unit vector along dimension i, optionally tilted towards j.
func axis(i int, tilt ...int) []float32 {
	v := make([]float32, testEmbeddingDims)
	v[i] = 1
	for _, j := range tilt {
		v[j] = 0.5
	}
	return v
}
