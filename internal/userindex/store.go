package userindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

const (
	stagingPrefix = ".staging-"
	trashPrefix   = ".trash-"
	uuidLen       = 36
)

var errLocalMissing = errors.New("user index not present locally")

// BlobStore is the remote copy of user files.
type BlobStore interface {
	Put(ctx context.Context, localPath, key string) error
	Get(ctx context.Context, key, localPath string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Store keeps user indexes under root/{user_id}/ and mirrors them to
// users/{user_id}/faiss/ in the blob store.
//
// Saving is two-phase. The local commit writes a complete generation into a
// staging directory and swaps it into place, so readers see either the old or
// the new index. Replication then uploads the index and the passages under
// users/{user_id}/faiss/{generation}/ and finally the manifest naming that
// generation; the remote manifest is the commit point for other nodes and the
// files of the generation it replaced are removed afterwards. A replication
// failure leaves the local index usable and marked unreplicated until
// Replicate succeeds, while other nodes keep fetching the previous generation.
type Store struct {
	root   string
	blobs  BlobStore
	logger *zap.Logger
	locks  *userLocks
	now    func() time.Time
}

// NewStore creates a Store rooted at root, typically {DATA_DIR}/vectorstores.
func NewStore(root string, blobs BlobStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		root:   root,
		blobs:  blobs,
		logger: logger,
		locks:  newUserLocks(),
		now:    time.Now,
	}
}

// Dir returns the local directory holding userID's index.
func (s *Store) Dir(userID string) string {
	return filepath.Join(s.root, userID)
}

// Save replaces userID's index with one built from vectors and passages.
// The returned error only reports the local commit; replication failures are
// logged and reflected in Manifest.Replicated.
func (s *Store) Save(ctx context.Context, userID string, vectors *vectorindex.Flat, passages []domain.Passage, model string) (Manifest, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return Manifest{}, err
	}
	if vectors == nil || vectors.Len() == 0 {
		return Manifest{}, domain.ErrEmptyIndex
	}

	ix := &Index{
		Manifest: Manifest{
			Generation: uuid.New().String(),
			Passages:   len(passages),
			Dimension:  vectors.Dim(),
			Model:      model,
			CreatedAt:  s.now().UTC(),
		},
		Vectors:  vectors,
		Passages: passages,
	}
	if err := ix.Validate(); err != nil {
		return Manifest{}, err
	}

	unlock := s.locks.Lock(userID)
	err := s.commitLocal(userID, ix)
	unlock()
	if err != nil {
		return Manifest{}, err
	}

	log := s.logger.With(zap.String("user_id", userID), zap.String("generation", ix.Manifest.Generation))
	log.Info("user index committed locally", zap.Int("passages", len(passages)))

	if err := s.Replicate(ctx, userID); err != nil {
		log.Warn("user index replication deferred", zap.Error(err))
		return ix.Manifest, nil
	}

	ix.Manifest.Replicated = true
	return ix.Manifest, nil
}

// Replicate uploads the current local generation of userID's index if it has
// not been replicated yet.
func (s *Store) Replicate(ctx context.Context, userID string) (err error) {
	unlock := s.locks.RLock(userID)
	defer unlock()

	m, err := s.readManifest(s.Dir(userID))
	if errors.Is(err, errLocalMissing) {
		return domain.ErrIndexNotFound
	}
	if err != nil {
		return err
	}
	if m.Replicated {
		return nil
	}

	defer func() {
		metrics.ReplicationsTotal.WithLabelValues(statusLabel(err)).Inc()
	}()

	previous := s.remoteGeneration(ctx, userID)

	dir := s.Dir(userID)
	for _, name := range []string{IndexFile, PassagesFile} {
		if err := s.blobs.Put(ctx, filepath.Join(dir, name), generationKey(userID, m.Generation, name)); err != nil {
			return domain.Wrap(domain.ErrBlobStore, fmt.Errorf("replicate %s: %w", name, err))
		}
	}

	m.Replicated = true
	tmp, err := s.writeTempManifest(m)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := s.blobs.Put(ctx, tmp, domain.IndexKey(userID, ManifestFile)); err != nil {
		return domain.Wrap(domain.ErrBlobStore, fmt.Errorf("replicate %s: %w", ManifestFile, err))
	}
	if err := os.Rename(tmp, filepath.Join(dir, ManifestFile)); err != nil {
		return fmt.Errorf("mark %s replicated: %w", userID, err)
	}

	log := s.logger.With(zap.String("user_id", userID), zap.String("generation", m.Generation))
	if previous != "" && previous != m.Generation {
		prefix := generationKey(userID, previous, "")
		if err := s.blobs.DeletePrefix(ctx, prefix); err != nil {
			log.Warn("failed to delete replaced remote generation", zap.String("prefix", prefix), zap.Error(err))
		}
	}

	log.Info("user index replicated")
	return nil
}

// remoteGeneration returns the generation named by the remote manifest, or ""
// when there is none or it cannot be read.
func (s *Store) remoteGeneration(ctx context.Context, userID string) string {
	f, err := os.CreateTemp(s.root, ".remote-manifest-*")
	if err != nil {
		return ""
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	if err := s.blobs.Get(ctx, domain.IndexKey(userID, ManifestFile), name); err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("failed to read remote manifest", zap.String("user_id", userID), zap.Error(err))
		}
		return ""
	}
	m, err := readManifest(name)
	if err != nil {
		return ""
	}
	return m.Generation
}

// Load returns userID's index, fetching it from the blob store when it is not
// present locally. A user without any index yields domain.ErrIndexNotFound.
func (s *Store) Load(ctx context.Context, userID string) (*Index, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(userID)
	ix, err := s.readLocal(userID)
	unlock()
	if !errors.Is(err, errLocalMissing) {
		return ix, err
	}

	unlock = s.locks.Lock(userID)
	defer unlock()

	// another request may have fetched it while we waited
	ix, err = s.readLocal(userID)
	if !errors.Is(err, errLocalMissing) {
		return ix, err
	}

	if err := s.fetch(ctx, userID); err != nil {
		metrics.IndexFetchesTotal.WithLabelValues(statusLabel(err)).Inc()
		return nil, err
	}
	metrics.IndexFetchesTotal.WithLabelValues("ok").Inc()

	ix, err = s.readLocal(userID)
	if errors.Is(err, errLocalMissing) {
		return nil, domain.ErrIndexNotFound
	}
	return ix, err
}

// Delete removes userID's local index and its remote copy. Failing to delete
// the remote copy is logged and not returned.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := os.RemoveAll(s.Dir(userID)); err != nil {
		return fmt.Errorf("remove local index for %s: %w", userID, err)
	}

	prefix := domain.IndexKey(userID, "")
	if err := s.blobs.DeletePrefix(ctx, prefix); err != nil {
		s.logger.Warn("failed to delete remote user index",
			zap.String("user_id", userID),
			zap.String("prefix", prefix),
			zap.Error(err))
	}
	return nil
}

// PendingIndex is a local index generation that has not been replicated.
type PendingIndex struct {
	UserID     string
	Generation string
}

// PendingReplication lists local indexes that are not yet replicated.
func (s *Store) PendingReplication() ([]PendingIndex, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			metrics.ReplicationPending.Set(0)
			return nil, nil
		}
		return nil, fmt.Errorf("list user indexes: %w", err)
	}

	var pending []PendingIndex
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m, err := s.readManifest(filepath.Join(s.root, e.Name()))
		if err != nil {
			if !errors.Is(err, errLocalMissing) {
				s.logger.Warn("unreadable user index manifest", zap.String("user_id", e.Name()), zap.Error(err))
			}
			continue
		}
		if !m.Replicated {
			pending = append(pending, PendingIndex{UserID: e.Name(), Generation: m.Generation})
		}
	}

	metrics.ReplicationPending.Set(float64(len(pending)))
	return pending, nil
}

// Recover finishes or rolls back local commits interrupted by a crash.
// A staging directory with a manifest replaces a missing user directory; a
// trashed directory is restored when nothing replaced it. Everything else is removed.
func (s *Store) Recover() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan %s: %w", s.root, err)
	}

	for _, e := range entries {
		name := e.Name()
		var prefix string
		switch {
		case strings.HasPrefix(name, stagingPrefix):
			prefix = stagingPrefix
		case strings.HasPrefix(name, trashPrefix):
			prefix = trashPrefix
		default:
			continue
		}

		path := filepath.Join(s.root, name)
		userID, ok := userFromTempName(name, prefix)
		if !ok || !e.IsDir() {
			_ = os.RemoveAll(path)
			continue
		}

		unlock := s.locks.Lock(userID)
		err := s.recoverDir(userID, path, prefix)
		unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recoverDir(userID, path, prefix string) error {
	final := s.Dir(userID)
	_, statErr := os.Stat(filepath.Join(final, ManifestFile))
	finalPresent := statErr == nil

	_, statErr = os.Stat(filepath.Join(path, ManifestFile))
	complete := statErr == nil

	if !finalPresent && complete {
		if err := os.RemoveAll(final); err != nil {
			return fmt.Errorf("clear %s: %w", final, err)
		}
		if err := os.Rename(path, final); err != nil {
			return fmt.Errorf("restore %s: %w", path, err)
		}
		s.logger.Info("recovered interrupted user index commit",
			zap.String("user_id", userID), zap.String("from", strings.TrimSuffix(prefix, "-")))
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// commitLocal writes ix into a staging directory and swaps it into place.
// Callers hold the user's exclusive lock.
func (s *Store) commitLocal(userID string, ix *Index) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.root, err)
	}

	staging := filepath.Join(s.root, stagingPrefix+ix.Manifest.Generation+"-"+userID)
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	if err := writeIndexFiles(staging, ix); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	return s.swapIn(userID, staging, ix.Manifest.Generation)
}

// swapIn replaces the user directory with dir.
func (s *Store) swapIn(userID, dir, generation string) error {
	final := s.Dir(userID)
	trash := filepath.Join(s.root, trashPrefix+generation+"-"+userID)

	hadPrevious := false
	if _, err := os.Stat(final); err == nil {
		if err := os.Rename(final, trash); err != nil {
			_ = os.RemoveAll(dir)
			return fmt.Errorf("move previous index aside: %w", err)
		}
		hadPrevious = true
	}

	if err := os.Rename(dir, final); err != nil {
		if hadPrevious {
			_ = os.Rename(trash, final)
		}
		_ = os.RemoveAll(dir)
		return fmt.Errorf("move new index into place: %w", err)
	}

	if hadPrevious {
		if err := os.RemoveAll(trash); err != nil {
			s.logger.Warn("failed to remove previous user index", zap.String("path", trash), zap.Error(err))
		}
	}
	return nil
}

// fetch downloads userID's index from the blob store into place.
// Callers hold the user's exclusive lock.
func (s *Store) fetch(ctx context.Context, userID string) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.root, err)
	}

	stagingID := uuid.New().String()
	staging := filepath.Join(s.root, stagingPrefix+stagingID+"-"+userID)
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	manifestPath := filepath.Join(staging, ManifestFile)
	err := s.blobs.Get(ctx, domain.IndexKey(userID, ManifestFile), manifestPath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return domain.ErrIndexNotFound
	}
	if err != nil {
		return domain.Wrap(domain.ErrBlobStore, fmt.Errorf("fetch manifest: %w", err))
	}
	m, err := readManifest(manifestPath)
	if err != nil {
		return err
	}
	if m.Generation == "" {
		return domain.Wrap(domain.ErrIndexCorrupt, fmt.Errorf("remote manifest for %s names no generation", userID))
	}

	for _, name := range []string{IndexFile, PassagesFile} {
		if err := s.blobs.Get(ctx, generationKey(userID, m.Generation, name), filepath.Join(staging, name)); err != nil {
			return domain.Wrap(domain.ErrBlobStore, fmt.Errorf("fetch %s: %w", name, err))
		}
	}

	ix, err := readIndexFiles(staging)
	if err != nil {
		return err
	}
	if !ix.Manifest.Replicated {
		ix.Manifest.Replicated = true
		if err := writeManifest(filepath.Join(staging, ManifestFile), ix.Manifest); err != nil {
			return err
		}
	}

	if err := s.swapIn(userID, staging, stagingID); err != nil {
		return err
	}

	s.logger.Info("user index restored from blob store",
		zap.String("user_id", userID),
		zap.String("generation", ix.Manifest.Generation),
		zap.Int("passages", ix.Manifest.Passages))
	return nil
}

func (s *Store) readLocal(userID string) (*Index, error) {
	dir := s.Dir(userID)
	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); os.IsNotExist(err) {
		return nil, errLocalMissing
	}
	return readIndexFiles(dir)
}

func (s *Store) readManifest(dir string) (Manifest, error) {
	m, err := readManifest(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, errLocalMissing
	}
	return m, err
}

func (s *Store) writeTempManifest(m Manifest) (string, error) {
	f, err := os.CreateTemp(s.root, ".manifest-*")
	if err != nil {
		return "", fmt.Errorf("create manifest: %w", err)
	}
	name := f.Name()
	f.Close()

	if err := writeManifest(name, m); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func writeIndexFiles(dir string, ix *Index) error {
	generation := ix.Manifest.Generation
	if err := writeFile(filepath.Join(dir, IndexFile), func(w io.Writer) error {
		return ix.Vectors.Encode(w, generation)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, PassagesFile), func(w io.Writer) error {
		return vectorindex.EncodePassages(w, generation, ix.Passages)
	}); err != nil {
		return err
	}
	// manifest last: a directory without one is incomplete
	return writeManifest(filepath.Join(dir, ManifestFile), ix.Manifest)
}

func readIndexFiles(dir string) (*Index, error) {
	m, err := readManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	vf, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, domain.Wrap(domain.ErrIndexCorrupt, err)
	}
	defer vf.Close()
	vectors, vectorsGen, err := vectorindex.DecodeFlat(vf)
	if err != nil {
		return nil, err
	}

	pf, err := os.Open(filepath.Join(dir, PassagesFile))
	if err != nil {
		return nil, domain.Wrap(domain.ErrIndexCorrupt, err)
	}
	defer pf.Close()
	passages, passagesGen, err := vectorindex.DecodePassages(pf)
	if err != nil {
		return nil, err
	}
	if vectorsGen != m.Generation || passagesGen != m.Generation {
		return nil, domain.Wrap(domain.ErrIndexCorrupt,
			fmt.Errorf("manifest generation %q, index %q, passages %q", m.Generation, vectorsGen, passagesGen))
	}

	ix := &Index{Manifest: m, Vectors: vectors, Passages: passages}
	if err := ix.Validate(); err != nil {
		return nil, err
	}
	return ix, nil
}

// generationKey returns the blob-store key of one data file of a generation.
// An empty name yields the generation's prefix.
func generationKey(userID, generation, name string) string {
	return domain.IndexKey(userID, generation+"/"+name)
}

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, domain.Wrap(domain.ErrIndexCorrupt, fmt.Errorf("decode manifest: %w", err))
	}
	return m, nil
}

func writeManifest(path string, m Manifest) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// writeFile writes and syncs path.
func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func userFromTempName(name, prefix string) (string, bool) {
	rest := strings.TrimPrefix(name, prefix)
	if len(rest) < uuidLen+2 || rest[uuidLen] != '-' {
		return "", false
	}
	userID := rest[uuidLen+1:]
	if domain.ValidateUserID(userID) != nil {
		return "", false
	}
	return userID, true
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
