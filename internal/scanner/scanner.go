// Package scanner walks a library root and reconciles the filesystem with
// the media inventory.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/fingerprint"
)

// photoExts and videoExts list the recognized media file extensions.
var photoExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".heic": true, ".tiff": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
}

func mediaKind(path string) (database.MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if photoExts[ext] {
		return database.KindPhoto, true
	}
	if videoExts[ext] {
		return database.KindVideo, true
	}
	return "", false
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".heic":
		return "image/heic"
	case ".tiff":
		return "image/tiff"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	}
	return "application/octet-stream"
}

// Scanner reconciles one library root with the inventory of a scope.
type Scanner struct {
	store *database.Store
	root  string
}

// New creates a scanner over the given filesystem root.
func New(store *database.Store, root string) *Scanner {
	return &Scanner{store: store, root: root}
}

// fileID identifies a file or directory across hard links and symlinks.
type fileID struct {
	dev uint64
	ino uint64
}

func idOf(info os.FileInfo) (fileID, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileID{}, false
	}
	return fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
}

// walk collects media file paths depth-first, following directory symlinks
// while a visited (dev, inode) set guards against cycles. Only a failure on
// the root itself is fatal; an unreadable subdirectory is logged and skipped
// so the rest of the library still gets scanned.
func (s *Scanner) walk(ctx context.Context) ([]string, error) {
	var files []string
	visited := make(map[fileID]bool)

	var walkDir func(dir string, isRoot bool) error
	walkDir = func(dir string, isRoot bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := os.Stat(dir)
		if err != nil {
			if isRoot {
				return err
			}
			log.Printf("scan: skipping %s: %v", dir, err)
			return nil
		}
		if id, ok := idOf(info); ok {
			if visited[id] {
				return nil
			}
			visited[id] = true
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if isRoot {
				return err
			}
			log.Printf("scan: skipping %s: %v", dir, err)
			return nil
		}
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			if e.IsDir() {
				if err := walkDir(full, false); err != nil {
					return err
				}
				continue
			}
			if e.Type()&os.ModeSymlink != 0 {
				target, err := os.Stat(full)
				if err != nil {
					// Broken symlink, skip it.
					continue
				}
				if target.IsDir() {
					if err := walkDir(full, false); err != nil {
						return err
					}
					continue
				}
			}
			if _, ok := mediaKind(full); ok {
				files = append(files, full)
			}
		}
		return nil
	}

	if err := walkDir(s.root, true); err != nil {
		return nil, err
	}
	return files, nil
}

// Run executes a scan job to completion: walk, diff against the inventory,
// soft-delete missing items. The caller has already claimed the job.
func (s *Scanner) Run(ctx context.Context, job *database.Job) error {
	existing, err := s.store.Media.ListByScope(ctx, job.Scope)
	if err != nil {
		s.store.Jobs.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("list inventory: %w", err)
	}
	byPath := make(map[string]*database.MediaItem, len(existing))
	for _, item := range existing {
		byPath[item.Path] = item
	}

	files, err := s.walk(ctx)
	if err != nil {
		s.store.Jobs.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("walk %s: %w", s.root, err)
	}

	if err := s.store.Jobs.SetTotal(ctx, job.ID, len(files)); err != nil {
		return fmt.Errorf("set job total: %w", err)
	}

	seen := make(map[string]bool, len(files))
	for _, file := range files {
		cancelled, err := s.store.Jobs.IsCancelRequested(ctx, job.ID)
		if err != nil {
			s.store.Jobs.Fail(ctx, job.ID, err.Error())
			return fmt.Errorf("check cancel flag: %w", err)
		}
		if cancelled {
			return s.store.Jobs.MarkCancelled(ctx, job.ID)
		}

		rel, err := filepath.Rel(s.root, file)
		if err != nil {
			rel = file
		}
		seen[rel] = true

		if err := s.scanFile(ctx, job.Scope, file, rel, byPath[rel]); err != nil {
			log.Printf("scan: %s: %v", rel, err)
			s.store.Jobs.Advance(ctx, job.ID, 1, 1)
			continue
		}
		s.store.Jobs.Advance(ctx, job.ID, 1, 0)
	}

	// Anything known but no longer on disk moves to the trash.
	now := time.Now()
	for path, item := range byPath {
		if !seen[path] {
			if err := s.store.Media.SoftDelete(ctx, item.ID, now); err != nil {
				log.Printf("scan: soft delete %s: %v", path, err)
			}
		}
	}

	return s.store.Jobs.Complete(ctx, job.ID)
}

// scanFile reconciles one file against its known inventory entry.
func (s *Scanner) scanFile(ctx context.Context, scope, file, rel string, known *database.MediaItem) error {
	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	// Signature unchanged means nothing to do.
	if known != nil && known.Size == info.Size() && known.ModTime.Equal(info.ModTime()) {
		return nil
	}

	kind, _ := mediaKind(file)
	result, decodeErr, err := s.computeFingerprint(file, kind)
	if err != nil {
		return err
	}

	item := known
	if item == nil {
		// A path previously soft-deleted may come back.
		prior, err := s.store.Media.GetByPath(ctx, scope, rel)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("lookup path: %w", err)
		}
		if prior != nil {
			if err := s.reviveItem(ctx, prior, info, result); err != nil {
				return err
			}
			item = prior
		} else {
			created, err := s.createItem(ctx, scope, rel, info, kind, result)
			if err != nil {
				return err
			}
			item = created
		}
	} else if err := s.updateItem(ctx, item, info, result); err != nil {
		return err
	}

	// An undecodable photo still gets its inventory row; the failure lives
	// on the metadata stage so the jobs API and counters surface it.
	if decodeErr != "" {
		state := database.StageState{Status: database.StageError, Error: decodeErr, Attempts: 1}
		if err := s.store.Media.SetStage(ctx, item.ID, database.StageMetadata, state); err != nil {
			return fmt.Errorf("record decode failure: %w", err)
		}
		return errors.New(decodeErr)
	}
	return nil
}

// computeFingerprint hashes the file. Videos never decode as images, so a
// corrupt-input result is expected for them; for photos the decode failure
// comes back separately with a still-valid content hash.
func (s *Scanner) computeFingerprint(file string, kind database.MediaKind) (*fingerprint.Result, string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	result, err := fingerprint.Compute(f)
	if err != nil {
		if result == nil || !errors.Is(err, fingerprint.ErrCorrupt) {
			return nil, "", fmt.Errorf("fingerprint: %w", err)
		}
		if kind == database.KindVideo {
			return result, "", nil
		}
		return result, err.Error(), nil
	}
	return result, "", nil
}

func (s *Scanner) createItem(ctx context.Context, scope, rel string, info os.FileInfo, kind database.MediaKind, fp *fingerprint.Result) (*database.MediaItem, error) {
	item := &database.MediaItem{
		Scope:       scope,
		Path:        rel,
		Filename:    filepath.Base(rel),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		MimeType:    mimeFromExt(rel),
		Kind:        kind,
		ContentHash: fp.ContentHash,
		PHashBits:   fp.PHashBits,
		DHashBits:   fp.DHashBits,
		Stages:      database.NewStageSet(),
	}
	if err := s.store.Media.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return item, s.flagExactDuplicate(ctx, item)
}

// flagExactDuplicate marks the item as a byte-identical duplicate when an
// earlier item with the same content hash exists. The earliest stays
// canonical; nothing is ever deleted automatically.
func (s *Scanner) flagExactDuplicate(ctx context.Context, item *database.MediaItem) error {
	matches, err := s.store.Media.FindByContentHash(ctx, item.Scope, item.ContentHash)
	if err != nil {
		return fmt.Errorf("find by hash: %w", err)
	}
	for _, m := range matches {
		if m.ID != item.ID {
			return s.store.Media.SetDuplicateOf(ctx, item.ID, m.ID)
		}
	}
	return nil
}

// reviveItem restores a soft-deleted item whose file reappeared.
func (s *Scanner) reviveItem(ctx context.Context, item *database.MediaItem, info os.FileInfo, fp *fingerprint.Result) error {
	contentChanged := item.ContentHash != fp.ContentHash

	item.Size = info.Size()
	item.ModTime = info.ModTime()
	item.ContentHash = fp.ContentHash
	item.PHashBits = fp.PHashBits
	item.DHashBits = fp.DHashBits
	item.DeletedAt = nil
	if err := s.store.Media.Update(ctx, item); err != nil {
		return fmt.Errorf("revive item: %w", err)
	}
	if contentChanged {
		return s.store.Media.ResetStages(ctx, item.ID, nil)
	}
	return nil
}

// updateItem refreshes an item whose signature changed. Stages only reset
// when the bytes actually changed; a pure mtime touch keeps derived data.
func (s *Scanner) updateItem(ctx context.Context, item *database.MediaItem, info os.FileInfo, fp *fingerprint.Result) error {
	contentChanged := item.ContentHash != fp.ContentHash

	item.Size = info.Size()
	item.ModTime = info.ModTime()
	item.ContentHash = fp.ContentHash
	item.PHashBits = fp.PHashBits
	item.DHashBits = fp.DHashBits
	if err := s.store.Media.Update(ctx, item); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if contentChanged {
		if err := s.store.Media.ResetStages(ctx, item.ID, nil); err != nil {
			return fmt.Errorf("reset stages: %w", err)
		}
		return s.flagExactDuplicate(ctx, item)
	}
	return nil
}
