package snapshotplugin

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// fetchArchive downloads a zip snapshot and extracts it into destination.
// Hosting services wrap archive contents in a single top-level directory
// named after the ref; that wrapper is stripped so the destination layout
// stays stable across refs.
func fetchArchive(ctx context.Context, url, destination string) error {
	tmp, err := downloadArchive(ctx, url)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.RemoveAll(destination); err != nil {
		return fmt.Errorf("clear destination: %w", err)
	}
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	return extractArchive(tmp, destination)
}

func downloadArchive(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp("", "snapshot-*.zip")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write archive: %w", err)
	}
	return tmp.Name(), nil
}

func extractArchive(archivePath, destination string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	prefix := commonArchiveRoot(reader.File)

	for _, file := range reader.File {
		name := strings.TrimPrefix(file.Name, prefix)
		if name == "" {
			continue
		}

		target, err := secureJoin(destination, name)
		if err != nil {
			return err
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := ensureParent(target); err != nil {
			return err
		}
		if err := extractFile(file, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	mode := file.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// commonArchiveRoot returns the shared top-level directory of all archive
// entries, or empty when entries are not wrapped in one.
func commonArchiveRoot(files []*zip.File) string {
	root := ""
	for _, file := range files {
		head, _, found := strings.Cut(file.Name, "/")
		if !found {
			return ""
		}
		if root == "" {
			root = head
		} else if head != root {
			return ""
		}
	}
	if root == "" {
		return ""
	}
	return root + "/"
}

func secureJoin(destination, name string) (string, error) {
	target := filepath.Join(destination, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destination)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}
