package workspace

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Archive compresses a workspace into the archive directory and returns the
// archive path, or "" when archival is disabled. Callers run this before
// Cleanup when they want the contents preserved.
func (m *Manager) Archive(ctx context.Context, path, correlationID string) (string, error) {
	if !m.cfg.ArchiveEnabled {
		return "", nil
	}
	if m.cfg.ArchiveDir == "" {
		return "", fmt.Errorf("archive enabled but no archive directory configured")
	}
	validated, err := m.guard.Validate(path, correlationID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(validated); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat workspace: %w", err)
	}

	if err := os.MkdirAll(m.cfg.ArchiveDir, 0o750); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.tar.gz", filepath.Base(validated), time.Now().UTC().Format("20060102T150405Z"))
	dst := filepath.Join(m.cfg.ArchiveDir, name)

	if err := writeTarGz(ctx, validated, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("archive workspace: %w", err)
	}
	m.log.Info("workspace archived",
		zap.String("correlation_id", correlationID),
		zap.String("archive", name),
	)
	return dst, nil
}

func writeTarGz(ctx context.Context, src, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			// sockets, devices and the like are not archived
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, in)
		in.Close()
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Sync()
}
