//go:build e2e

package e2e

import (
	"context"
	"hash/fnv"
	"math"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/cli/client"
	"github.com/cloo-solutions/docqa/internal/document"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/server"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/testutil"
	"github.com/cloo-solutions/docqa/internal/userindex"
)

const (
	staticToken = "e2e-static-token"
	staticUser  = "alice"
	bagDims     = 256
)

// bagOfWords embeds text as a normalized hashed word histogram so that
// passages sharing words with the question rank first.
type bagOfWords struct{}

func (bagOfWords) Model() string   { return "bag-of-words" }
func (bagOfWords) Dimensions() int { return bagDims }

func (bagOfWords) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, bagDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%bagDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// contextEcho answers with the first passage of the context block.
type contextEcho struct{}

func (contextEcho) Generate(_ context.Context, _, user string) (string, error) {
	block, _, _ := strings.Cut(strings.TrimPrefix(user, "Context:\n"), "\n\nQuestion:")
	first, _, _ := strings.Cut(block, "\n\n")
	return "From your documents: " + first, nil
}

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T         *testing.T
	Ctx       context.Context
	PostgresC *testutil.PostgresContainer
	RustFSC   *testutil.RustFSContainer
	Pool      *pgxpool.Pool
	S3Client  *storage.S3Client
	Server    *httptest.Server
	Auth      *service.AuthService
}

// SetupE2EEnv starts Postgres and RustFS and serves the full router backed by
// them under a temporary data directory.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          testutil.RustFSRegion,
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          testutil.BucketName(t),
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	env := &E2ETestEnv{
		T:         t,
		Ctx:       ctx,
		PostgresC: pgC,
		RustFSC:   s3C,
		Pool:      pool,
		S3Client:  s3Client,
		Auth:      service.NewAuthService(repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{}),
	}
	env.Server = env.StartServer(t.TempDir())
	return env
}

// StartServer wires a server instance whose local state lives in dataDir.
// Two instances with different directories behave like two hosts sharing
// the database and bucket.
func (e *E2ETestEnv) StartServer(dataDir string) *httptest.Server {
	log := zaptest.NewLogger(e.T)

	store := userindex.NewStore(dataDir+"/vectorstores", e.S3Client, log)
	chunker, err := document.NewChunker(document.DefaultChunkConfig())
	if err != nil {
		e.T.Fatalf("failed to create chunker: %v", err)
	}

	embedder := bagOfWords{}
	builder := service.NewIndexBuilder(chunker, embedder, store, log)
	queryLogs := repository.NewQueryLogRepository(e.Pool)
	query := service.NewQueryEngine(store, embedder, contextEcho{}, 0, log).WithQueryLog(queryLogs)
	uploads := service.NewUploadService(dataDir+"/uploads", e.S3Client, builder, store,
		repository.NewDocumentRepository(e.Pool), &service.DefaultUUIDGenerator{}, log)

	srv := httptest.NewServer(server.NewRouter(server.RouterConfig{
		Logger:          log,
		AuthValidator:   service.KeyChain{service.StaticKeys{staticToken: staticUser}, e.Auth},
		DocumentHandler: handlers.NewDocumentHandler(uploads),
		AskHandler:      handlers.NewAskHandler(query),
		AuthHandler:     handlers.NewAuthHandler(e.Auth),
		HistoryHandler:  handlers.NewHistoryHandler(queryLogs),
	}))
	e.T.Cleanup(srv.Close)
	return srv
}

// Client returns an API client for srv authenticated with token.
func (e *E2ETestEnv) Client(srv *httptest.Server, token string) *client.APIClient {
	return client.NewAPIClientWithConfig(token, srv.URL)
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
