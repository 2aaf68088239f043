// Package backup periodically archives the Brain's durable event log and
// latest-snapshot tables to an S3-compatible bucket (AWS S3 or Cloudflare
// R2), with checksum metadata and retention-based rotation.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Metadata describes one archived snapshot.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"sizeBytes"`
	Checksum  string    `json:"checksum"`
}

// Info describes a backup object already stored in the bucket.
type Info struct {
	Filename  string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

const archivePrefix = "brain-backup-"

// objectStore is the subset of S3Client the archiver depends on, kept
// narrow so tests can substitute an in-memory fake instead of talking to a
// real bucket.
type objectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Archiver snapshots the sqlite database file, tars and gzips it alongside
// a metadata manifest, and uploads the result to the configured bucket.
type Archiver struct {
	client       objectStore
	databasePath string
	stagingDir   string
	log          zerolog.Logger
}

// NewArchiver constructs an Archiver. stagingDir is a scratch directory the
// archiver creates, populates, and removes for each run.
func NewArchiver(client objectStore, databasePath, stagingDir string, log zerolog.Logger) *Archiver {
	return &Archiver{
		client:       client,
		databasePath: databasePath,
		stagingDir:   stagingDir,
		log:          log.With().Str("component", "backup_archiver").Logger(),
	}
}

// CreateAndUpload snapshots the database, archives it, and uploads the
// archive to the bucket.
func (a *Archiver) CreateAndUpload(ctx context.Context) error {
	start := time.Now()
	if err := os.MkdirAll(a.stagingDir, 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(a.stagingDir)

	dbCopyPath := filepath.Join(a.stagingDir, "brain.db")
	if err := copyFile(a.databasePath, dbCopyPath); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}

	info, err := os.Stat(dbCopyPath)
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}
	checksum, err := checksumFile(dbCopyPath)
	if err != nil {
		return fmt.Errorf("checksum snapshot: %w", err)
	}

	meta := Metadata{
		Timestamp: time.Now().UTC(),
		Database:  "brain.db",
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}
	metaPath := filepath.Join(a.stagingDir, "backup-metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%s%s.tar.gz", archivePrefix, timestamp)
	archivePath := filepath.Join(a.stagingDir, archiveName)
	if err := createArchive(archivePath, dbCopyPath, metaPath); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := a.client.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	a.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("backup archive uploaded")
	return nil
}

// List returns every backup in the bucket, newest first.
func (a *Archiver) List(ctx context.Context) ([]Info, error) {
	objects, err := a.client.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	now := time.Now()
	backups := make([]Info, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}
		ts := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse("2006-01-02-150405", ts)
		if err != nil {
			a.log.Warn().Str("filename", obj.Key).Msg("failed to parse backup timestamp")
			continue
		}
		backups = append(backups, Info{
			Filename:  obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// Rotate deletes backups older than retentionDays, always keeping at least
// minBackupsToKeep regardless of age.
const minBackupsToKeep = 3

func (a *Archiver) Rotate(ctx context.Context, retentionDays int) error {
	backups, err := a.List(ctx)
	if err != nil {
		return fmt.Errorf("list backups for rotation: %w", err)
	}
	if len(backups) <= minBackupsToKeep || retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := a.client.Delete(ctx, b.Filename); err != nil {
			a.log.Error().Err(err).Str("filename", b.Filename).Msg("failed to delete old backup")
			continue
		}
		deleted++
	}

	a.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("backup rotation completed")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath string, files ...string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, path := range files {
		if err := addFileToArchive(tw, path); err != nil {
			return fmt.Errorf("add %s: %w", path, err)
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
