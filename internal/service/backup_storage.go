package service

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupStorage 本地制品库，目录布局 base/<cluster>/<name>/<timestamp>
type BackupStorage struct {
	basePath string
}

func NewBackupStorage(basePath string) *BackupStorage {
	return &BackupStorage{basePath: basePath}
}

// BasePath 制品库根目录
func (s *BackupStorage) BasePath() string {
	return s.basePath
}

func (s *BackupStorage) CreateRunDirectory(clusterID, backupName string) (string, error) {
	timestamp := time.Now().Format("20060102-150405")
	runPath := filepath.Join(s.basePath, clusterID, backupName, timestamp)

	if err := os.MkdirAll(runPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	return runPath, nil
}

func (s *BackupStorage) WriteData(runPath, filename string, data []byte) error {
	if err := os.WriteFile(filepath.Join(runPath, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filename, err)
	}
	return nil
}

// Compress 打包为tar.gz并返回制品路径与大小，原目录随后可删
func (s *BackupStorage) Compress(runPath string) (string, int64, error) {
	artifactPath := runPath + ".tar.gz"

	f, err := os.Create(artifactPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	gzw := gzip.NewWriter(f)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	err = filepath.Walk(runPath, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath := strings.TrimPrefix(file, runPath)
		relPath = strings.TrimPrefix(relPath, string(os.PathSeparator))
		if relPath == "" {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, relPath)
		if err != nil {
			return fmt.Errorf("failed to create tar header: %w", err)
		}
		header.Name = relPath

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header: %w", err)
		}

		if !fi.IsDir() {
			src, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer src.Close()

			if _, err := io.Copy(tw, src); err != nil {
				return fmt.Errorf("failed to copy file data: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return "", 0, err
	}

	// flush后再统计大小
	tw.Close()
	gzw.Close()
	f.Close()

	info, err := os.Stat(artifactPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat archive: %w", err)
	}

	return artifactPath, info.Size(), nil
}

func (s *BackupStorage) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *BackupStorage) RemoveArtifact(artifactRef string) error {
	if artifactRef == "" {
		return nil
	}
	// 制品引用必须落在制品库内，防止误删
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return err
	}
	absRef, err := filepath.Abs(artifactRef)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(absRef, absBase+string(os.PathSeparator)) {
		return fmt.Errorf("artifact ref %s outside storage base", artifactRef)
	}
	return os.RemoveAll(absRef)
}

func (s *BackupStorage) RemoveDirectory(dirPath string) error {
	return os.RemoveAll(dirPath)
}
