package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

// BlobStore replicates uploaded files.
type BlobStore interface {
	Put(ctx context.Context, localPath, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// DownloadURLSigner issues temporary download links for stored objects.
// Blob stores that can sign URLs implement it.
type DownloadURLSigner interface {
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// DocumentRepository is the ledger of uploaded documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	ListByUser(ctx context.Context, userID string) ([]*domain.Document, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// Builder builds a user index from local PDF paths.
type Builder interface {
	Build(ctx context.Context, userID string, paths []string) (*BuildResult, error)
}

// UploadFile is one named PDF stream in an upload batch.
type UploadFile struct {
	Name    string
	Content io.Reader
}

// UploadResult reports the stored files and the index built from them.
type UploadResult struct {
	Documents []*domain.Document
	Index     *BuildResult
}

// UploadService stores uploaded PDFs, replicates them and rebuilds the user's index.
type UploadService struct {
	root    string
	blobs   BlobStore
	builder Builder
	store   IndexStore
	docs    DocumentRepository
	uuidGen UUIDGenerator
	logger  *zap.Logger
}

// NewUploadService creates an UploadService keeping files under root/{user_id}/.
// docs may be nil when no database is configured.
func NewUploadService(root string, blobs BlobStore, builder Builder, store IndexStore, docs DocumentRepository, uuidGen UUIDGenerator, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	return &UploadService{
		root:    root,
		blobs:   blobs,
		builder: builder,
		store:   store,
		docs:    docs,
		uuidGen: uuidGen,
		logger:  logger,
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename reduces name to a safe base name made of ASCII letters,
// digits, '_', '.' and '-'. It returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	if name == "" || name == "." {
		return ""
	}
	return name
}

// Upload stores files for userID and rebuilds the user's index from them.
// Every name must end in .pdf or the whole batch is rejected. Only files that
// reached the blob store are indexed.
func (s *UploadService) Upload(ctx context.Context, userID string, files []UploadFile) (*UploadResult, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, domain.ErrNoFiles
	}

	names := make([]string, len(files))
	for i, f := range files {
		name := SanitizeFilename(f.Name)
		if name == "" || !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			return nil, domain.Wrap(domain.ErrNotPDF, fmt.Errorf("%s is not a PDF file", f.Name))
		}
		names[i] = name
	}

	dir := filepath.Join(s.root, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	log := s.logger.With(zap.String("user_id", userID))
	var (
		paths []string
		docs  []*domain.Document
	)
	for i, f := range files {
		doc, path, err := s.save(dir, userID, names[i], f.Content)
		if err != nil {
			return nil, err
		}

		if err := s.blobs.Put(ctx, path, doc.StorageKey); err != nil {
			log.Warn("failed to replicate upload, excluding it from the index",
				zap.String("document", doc.Filename), zap.Error(err))
			continue
		}

		if s.docs != nil {
			if err := s.docs.Create(ctx, doc); err != nil {
				log.Warn("failed to record upload", zap.String("document", doc.Filename), zap.Error(err))
			}
		}
		telemetry.AddBreadcrumb(ctx, "upload", "stored "+doc.StorageKey)

		paths = append(paths, path)
		docs = append(docs, doc)
	}

	if len(paths) == 0 {
		return nil, domain.Wrap(domain.ErrBlobStore, fmt.Errorf("none of %d files could be replicated", len(files)))
	}

	build, err := s.builder.Build(ctx, userID, paths)
	if err != nil {
		return nil, err
	}

	log.Info("upload indexed", zap.Int("documents", len(docs)), zap.Int("passages", build.Passages))
	return &UploadResult{Documents: docs, Index: build}, nil
}

func (s *UploadService) save(dir, userID, name string, content io.Reader) (*domain.Document, string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), content)
	if err != nil {
		return nil, "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return nil, "", fmt.Errorf("close %s: %w", name, err)
	}

	doc := &domain.Document{
		ID:         s.uuidGen.NewString(),
		UserID:     userID,
		Filename:   name,
		StorageKey: domain.DocumentKey(userID, name),
		SizeBytes:  size,
		SHA256:     hex.EncodeToString(h.Sum(nil)),
		UploadedAt: time.Now().UTC(),
	}
	return doc, path, nil
}

// ListDocuments returns the user's uploads, newest first. Without a ledger
// the user's upload directory is listed instead.
func (s *UploadService) ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if s.docs != nil {
		docs, err := s.docs.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.signDownloads(ctx, docs)
		return docs, nil
	}

	entries, err := os.ReadDir(filepath.Join(s.root, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.Document{}, nil
		}
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	docs := make([]*domain.Document, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		docs = append(docs, &domain.Document{
			UserID:     userID,
			Filename:   e.Name(),
			StorageKey: domain.DocumentKey(userID, e.Name()),
			SizeBytes:  info.Size(),
			UploadedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UploadedAt.After(docs[j].UploadedAt) })
	s.signDownloads(ctx, docs)
	return docs, nil
}

// signDownloads attaches download links when the blob store can sign them.
func (s *UploadService) signDownloads(ctx context.Context, docs []*domain.Document) {
	signer, ok := s.blobs.(DownloadURLSigner)
	if !ok {
		return
	}
	for _, d := range docs {
		url, err := signer.GenerateDownloadURL(ctx, d.StorageKey)
		if err != nil {
			s.logger.Warn("failed to sign download url", zap.String("key", d.StorageKey), zap.Error(err))
			continue
		}
		d.DownloadURL = url
	}
}

// Reset deletes the user's uploads, index and remote files. Remote and ledger
// failures are logged; only failing to remove local files is returned.
func (s *UploadService) Reset(ctx context.Context, userID string) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Join(s.root, userID)); err != nil {
		return fmt.Errorf("remove uploads: %w", err)
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}

	log := s.logger.With(zap.String("user_id", userID))
	if err := s.blobs.DeletePrefix(ctx, domain.UserPrefix(userID)); err != nil {
		log.Warn("failed to delete remote user files", zap.Error(err))
	}

	if s.docs != nil {
		if _, err := s.docs.DeleteByUser(ctx, userID); err != nil {
			log.Warn("failed to delete document ledger entries", zap.Error(err))
		}
	}

	log.Info("user uploads and index reset")
	return nil
}
