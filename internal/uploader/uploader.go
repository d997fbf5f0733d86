package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carousel/internal/config"
	"carousel/internal/logging"
)

const userAgent = "Carousel-Go/0.1.0"

// modelExtensions mirrors the artifact payload types the ingest watcher
// flattens to the folder root.
var modelExtensions = map[string]struct{}{
	".glb":  {},
	".gltf": {},
	".obj":  {},
	".fbx":  {},
	".stl":  {},
	".ply":  {},
	".usdz": {},
	".mtl":  {},
	".bin":  {},
}

// Result reports the outcome of one upload attempt.
type Result struct {
	Success  bool
	Uploaded []string
	Err      error
}

// Uploader pushes artifact folders to a remote store.
type Uploader interface {
	// Upload ships the model files at the root of artifactDir plus an
	// optional preview image. It never returns an error; failure is
	// carried in the Result.
	Upload(ctx context.Context, artifactDir, previewImage string) Result
}

// New builds an uploader from config. Without an endpoint the returned
// implementation does nothing.
func New(cfg *config.Config, logger *slog.Logger) Uploader {
	endpoint := strings.TrimSpace(cfg.Upload.Endpoint)
	if endpoint == "" {
		return noopUploader{}
	}

	timeout := time.Duration(cfg.Upload.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &httpUploader{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Upload.Token),
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "uploader"),
	}
}

type httpUploader struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

func (u *httpUploader) Upload(ctx context.Context, artifactDir, previewImage string) Result {
	files, err := collectPayload(artifactDir, previewImage)
	if err != nil {
		return u.failed(artifactDir, err)
	}
	if len(files) == 0 {
		return u.failed(artifactDir, fmt.Errorf("no model files at %q", artifactDir))
	}

	body, contentType, err := buildMultipart(files)
	if err != nil {
		return u.failed(artifactDir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return u.failed(artifactDir, fmt.Errorf("build upload request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", contentType)
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return u.failed(artifactDir, fmt.Errorf("send upload: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return u.failed(artifactDir, fmt.Errorf("remote store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	u.logger.Info("artifact uploaded",
		logging.String(logging.FieldFolder, filepath.Base(artifactDir)),
		logging.Int("files", len(names)),
		logging.String(logging.FieldEventType, "upload_completed"),
	)
	return Result{Success: true, Uploaded: names}
}

func (u *httpUploader) failed(artifactDir string, err error) Result {
	u.logger.Warn("artifact upload failed",
		logging.Error(err),
		logging.String(logging.FieldFolder, filepath.Base(artifactDir)),
		logging.String(logging.FieldEventType, "upload_failed"),
		logging.String(logging.FieldImpact, "artifact remains local only"),
	)
	return Result{Err: err}
}

// collectPayload lists the model files at the folder root plus the preview
// image when it exists. A missing preview is not an error.
func collectPayload(artifactDir, previewImage string) ([]string, error) {
	entries, err := os.ReadDir(artifactDir)
	if err != nil {
		return nil, fmt.Errorf("read artifact folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := modelExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			files = append(files, filepath.Join(artifactDir, entry.Name()))
		}
	}

	if previewImage != "" {
		if _, err := os.Stat(previewImage); err == nil {
			files = append(files, previewImage)
		}
	}
	return files, nil
}

func buildMultipart(files []string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, path := range files {
		part, err := writer.CreateFormFile("files", filepath.Base(path))
		if err != nil {
			return nil, "", fmt.Errorf("create form part: %w", err)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("open %q: %w", filepath.Base(path), err)
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return nil, "", fmt.Errorf("read %q: %w", filepath.Base(path), err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize upload body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

type noopUploader struct{}

func (noopUploader) Upload(context.Context, string, string) Result {
	return Result{Success: true}
}
