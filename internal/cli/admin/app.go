package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/database"
	"github.com/cloo-solutions/docqa/internal/document"
	"github.com/cloo-solutions/docqa/internal/logger"
	"github.com/cloo-solutions/docqa/internal/openai"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/userindex"
)

// blobStore is what both the upload service and the index store need from
// the bucket.
type blobStore interface {
	userindex.BlobStore
	service.BlobStore
}

// app holds the wired services shared by serve and the one-shot commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	pool      *pgxpool.Pool
	documents *repository.DocumentRepository
	queryLogs *repository.QueryLogRepository
	apiKeys   *repository.APIKeyRepository

	blobs   blobStore
	store   *userindex.Store
	builder *service.IndexBuilder
	query   *service.QueryEngine
	uploads *service.UploadService
}

type appOptions struct {
	migrate bool
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: log}

	if cfg.HasDatabase() {
		if opts.migrate {
			if err := database.Migrate(cfg.DatabaseURL, log); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.documents = repository.NewDocumentRepository(pool)
		a.queryLogs = repository.NewQueryLogRepository(pool)
		a.apiKeys = repository.NewAPIKeyRepository(pool)
		log.Info("connected to database")
	} else {
		log.Info("no database configured, running without document ledger and API key store")
	}

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Info("S3 bucket ready", zap.String("bucket", cfg.S3Bucket))
		a.blobs = s3Client
	} else {
		log.Info("S3 not configured, using local blob directory", zap.String("dir", cfg.BlobDir()))
		a.blobs = storage.NewLocalStore(cfg.BlobDir())
	}

	a.store = userindex.NewStore(cfg.IndexDir(), a.blobs, log.Named("userindex"))
	if err := a.store.Recover(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to recover user indexes: %w", err)
	}

	if !cfg.HasOpenAI() {
		a.Close()
		return nil, fmt.Errorf("DOCQA_OPENAI_API_KEY is required")
	}
	aiCfg := openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
		EmbedTimeout:        cfg.EmbedTimeout,
		ChatTimeout:         cfg.ChatTimeout,
		MaxRetries:          retriesSetting(cfg.EmbedMaxRetries),
	}
	embedder, err := openai.NewClient(aiCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	generator, err := openai.NewChatClient(aiCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	chunker, err := document.NewChunker(document.ChunkConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.builder = service.NewIndexBuilder(chunker, embedder, a.store, log.Named("builder"))
	a.query = service.NewQueryEngine(a.store, embedder, generator, cfg.TopK, log.Named("query"))

	var docs service.DocumentRepository
	if a.documents != nil {
		docs = a.documents
		a.query.WithQueryLog(a.queryLogs)
	}
	a.uploads = service.NewUploadService(cfg.UploadDir(), a.blobs, a.builder, a.store, docs, &service.DefaultUUIDGenerator{}, log.Named("upload"))

	return a, nil
}

// retriesSetting maps the configured retry count onto openai.Config, where
// zero means the default.
func retriesSetting(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

// authService returns nil without a database.
func (a *app) authService() *service.AuthService {
	if a.apiKeys == nil {
		return nil
	}
	return service.NewAuthService(a.apiKeys, &service.DefaultUUIDGenerator{})
}

// keyChain accepts the configured static keys first, then stored keys.
func (a *app) keyChain() service.KeyChain {
	var chain service.KeyChain
	if len(a.cfg.APIKeys) > 0 {
		chain = append(chain, service.StaticKeys(a.cfg.APIKeys))
	}
	if auth := a.authService(); auth != nil {
		chain = append(chain, auth)
	}
	return chain
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}

// openDB connects to the configured database for the key management and
// history commands, which need nothing else.
func openDB(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasDatabase() {
		return nil, fmt.Errorf("DOCQA_DATABASE_URL is required")
	}
	return database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
}
