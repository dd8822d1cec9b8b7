package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/voxbridge/relay-service/internal/apierr"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// Querier summarizes a fetched recording.
type Querier interface {
	Query(ctx context.Context, prompt, mediaURL string, maxTokens int) (string, error)
}

// Alerter receives best-effort operational notifications.
type Alerter interface {
	Notify(ctx context.Context, msg string)
}

// Mirror is the remote backend for recordings. *gcs.Client satisfies it;
// nil keeps recordings local only.
type Mirror interface {
	Upload(ctx context.Context, objectPath string, content io.Reader) (string, error)
	GetPresignedURL(ctx context.Context, gcsURI string, expiresAt time.Time) (string, error)
}

// mirrorLinkTTL bounds how long a mirrored recording's shared link works.
const mirrorLinkTTL = 24 * time.Hour

// Artifact describes a stored call recording. Recordings live for the
// lifetime of the filesystem; nothing cleans them up.
type Artifact struct {
	Path          string // local file path
	RemoteURI     string // gs:// URI, set when the mirror is enabled
	SignedURL     string // time-limited download link for the mirrored copy
	SourceURL     string
	Summary       string
	SummaryPath   string
	TranscriptPDF string
}

// Store downloads call recordings into a shared directory and produces the
// summary and transcript artifacts next to them.
type Store struct {
	dir        string
	mirror     Mirror // nil disables the remote mirror
	ai         Querier
	alerts     Alerter
	httpClient *http.Client
}

func NewStore(dir string, mirror Mirror, ai Querier, alerts Alerter) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings dir: %w", err)
	}
	return &Store{
		dir:    dir,
		mirror: mirror,
		ai:     ai,
		alerts: alerts,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// uniqueName derives a per-call filename. Concurrent saves of the same call
// never overwrite each other: a random suffix keeps names distinct.
func uniqueName(baseName string) string {
	return fmt.Sprintf("%s-%s.ogg", baseName, uuid.New().String()[:8])
}

// Save fetches the recording at url, writes it under the store directory,
// and asks the AI client for a summary. The summary lands in a sidecar
// .summary.txt and a transcript PDF; a failed summarization still returns
// the artifact, just without those sidecars.
func (s *Store) Save(ctx context.Context, url, baseName string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.KindNetwork, "recording.save", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.Newf(apierr.KindUpstream, "recording.save",
			"recording fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.New(apierr.KindNetwork, "recording.save", err)
	}

	name := uniqueName(baseName)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write recording: %w", err)
	}

	artifact := &Artifact{Path: path, SourceURL: url}
	logger.Base().Info("recording saved", zap.String("path", path), zap.Int("bytes", len(data)))
	s.alerts.Notify(ctx, fmt.Sprintf("Recording saved: %s", path))

	if s.mirror != nil {
		remoteURI, err := s.mirror.Upload(ctx, "recordings/"+name, bytes.NewReader(data))
		if err != nil {
			logger.Base().Warn("recording mirror upload failed", zap.Error(err))
		} else {
			artifact.RemoteURI = remoteURI
			signedURL, err := s.mirror.GetPresignedURL(ctx, remoteURI, time.Now().Add(mirrorLinkTTL))
			if err != nil {
				logger.Base().Warn("recording mirror link signing failed", zap.Error(err))
			} else {
				artifact.SignedURL = signedURL
				s.alerts.Notify(ctx, fmt.Sprintf("Recording mirrored: %s", signedURL))
			}
		}
	}

	summary, err := s.ai.Query(ctx, "Transcribe and summarize this call recording.", url, 0)
	if err != nil {
		logger.Base().Warn("recording summarization failed", zap.Error(err))
		return artifact, nil
	}
	artifact.Summary = summary

	summaryPath := path + ".summary.txt"
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		logger.Base().Warn("failed to write summary", zap.Error(err))
		return artifact, nil
	}
	artifact.SummaryPath = summaryPath

	pdfPath := path + ".transcript.pdf"
	if err := writeTranscriptPDF("Call Recording Summary", summary, pdfPath); err != nil {
		logger.Base().Warn("failed to write transcript PDF", zap.Error(err))
		return artifact, nil
	}
	artifact.TranscriptPDF = pdfPath

	logger.Base().Info("recording summary saved", zap.String("summary_path", summaryPath))
	return artifact, nil
}
