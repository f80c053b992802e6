package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jeovahfialho/capital-gains/pkg/logger"
	"go.uber.org/zap"
)

// Downloader fetches remote input files so they can be imported like local ones.
type Downloader struct {
	httpClient *http.Client
	workers    int
}

func NewDownloader(workers int) *Downloader {
	if workers < 1 {
		workers = 1
	}

	return &Downloader{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		workers: workers,
	}
}

func IsRemote(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}

// DownloadFile saves url under outputDir and returns the local path. A file
// that was already downloaded is reused.
func (d *Downloader) DownloadFile(ctx context.Context, url, outputDir string) (string, error) {
	outputPath := filepath.Join(outputDir, localName(url))

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("erro ao criar diretório: %w", err)
	}

	if _, err := os.Stat(outputPath); err == nil {
		logger.Debug("arquivo já existe", zap.String("path", outputPath))
		return outputPath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("erro ao criar request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("erro ao fazer download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status code: %d para URL: %s", resp.StatusCode, url)
	}

	tempFile := outputPath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("erro ao criar arquivo: %w", err)
	}

	written, err := io.Copy(file, resp.Body)
	file.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("erro ao salvar arquivo: %w", err)
	}

	if err := os.Rename(tempFile, outputPath); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("erro ao renomear arquivo: %w", err)
	}

	logger.Info("arquivo baixado",
		zap.String("url", url),
		zap.String("path", outputPath),
		zap.Int64("bytes", written))

	return outputPath, nil
}

// DownloadAll fetches every url in parallel. Paths come back in the order of
// urls; the first failure is returned after all downloads finish.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string, outputDir string) ([]string, error) {
	paths := make([]string, len(urls))
	errs := make([]error, len(urls))

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.workers)

	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			p, err := d.DownloadFile(ctx, url, outputDir)
			if err != nil {
				errs[i] = fmt.Errorf("erro ao baixar %s: %w", url, err)
				return
			}
			paths[i] = p
		}(i, url)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// localName keeps the last path segment readable and adds a short hash so two
// urls with the same base name do not overwrite each other.
func localName(url string) string {
	sum := sha256.Sum256([]byte(url))
	prefix := hex.EncodeToString(sum[:4])

	base := path.Base(strings.SplitN(url, "?", 2)[0])
	if base == "" || base == "." || base == "/" || strings.Contains(base, ":") {
		base = "input.json"
	}
	return prefix + "_" + base
}
