package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// ErrDigestMismatch is returned by VerifyBackup when the archive does not
// match its .b3 sidecar.
var ErrDigestMismatch = errors.New("backup digest mismatch")

// BackupResult describes one written archive.
type BackupResult struct {
	Path   string // zstd-compressed snapshot
	Digest string // blake3 hex of the compressed bytes
	Bytes  int64
}

// Backup writes a consistent snapshot of db into dir as
// lasergate-YYYY-MM-DD.db.zst, with a blake3 digest sidecar. A second
// backup on the same day replaces the first.
func Backup(ctx context.Context, db *sql.DB, dir string, now time.Time) (BackupResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BackupResult{}, fmt.Errorf("mkdir backup dir: %w", err)
	}

	snapshot := filepath.Join(dir, fmt.Sprintf(".snapshot-%d.db", now.UnixNano()))
	defer os.Remove(snapshot)

	// VACUUM INTO produces a transactionally consistent copy even while the
	// daemon holds the database open in WAL mode.
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?;", snapshot); err != nil {
		return BackupResult{}, fmt.Errorf("snapshot: %w", err)
	}

	name := fmt.Sprintf("lasergate-%s.db.zst", now.Format("2006-01-02"))
	final := filepath.Join(dir, name)
	res, err := compressFile(snapshot, final+".tmp")
	if err != nil {
		_ = os.Remove(final + ".tmp")
		return BackupResult{}, err
	}
	if err := os.Rename(final+".tmp", final); err != nil {
		return BackupResult{}, fmt.Errorf("rename backup: %w", err)
	}
	res.Path = final

	sidecar := fmt.Sprintf("%s  %s\n", res.Digest, name)
	if err := os.WriteFile(final+".b3", []byte(sidecar), 0o644); err != nil {
		return BackupResult{}, fmt.Errorf("write digest: %w", err)
	}
	return res, nil
}

func compressFile(src, dst string) (BackupResult, error) {
	in, err := os.Open(src)
	if err != nil {
		return BackupResult{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return BackupResult{}, fmt.Errorf("create backup: %w", err)
	}
	defer out.Close()

	hasher := blake3.New()
	counter := &countingWriter{}
	enc, err := zstd.NewWriter(io.MultiWriter(out, hasher, counter),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
	)
	if err != nil {
		return BackupResult{}, fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		return BackupResult{}, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return BackupResult{}, fmt.Errorf("finish compression: %w", err)
	}
	if err := out.Sync(); err != nil {
		return BackupResult{}, fmt.Errorf("sync backup: %w", err)
	}

	return BackupResult{
		Digest: hex.EncodeToString(hasher.Sum(nil)),
		Bytes:  counter.n,
	}, nil
}

// VerifyBackup recomputes the blake3 digest of an archive and compares it
// with the adjacent .b3 sidecar.
func VerifyBackup(path string) error {
	b, err := os.ReadFile(path + ".b3")
	if err != nil {
		return fmt.Errorf("read digest: %w", err)
	}
	want, _, _ := strings.Cut(strings.TrimSpace(string(b)), " ")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return fmt.Errorf("hash backup: %w", err)
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); got != want {
		return fmt.Errorf("%s: %w", filepath.Base(path), ErrDigestMismatch)
	}
	return nil
}

// Decompress writes the plain sqlite snapshot contained in a backup
// archive to dst.
func Decompress(path, dst string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, dec); err != nil {
		_ = out.Close()
		return fmt.Errorf("decompress: %w", err)
	}
	return out.Close()
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
