package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/casegen/internal/domain"
)

// ObjectStore is the blob storage the archive writes to. *Bucket
// implements it.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// ArtifactStore archives generation sessions: the inputs, the screenshots
// and the parsed result, all under one prefix per session.
//
//	<results>/<session>/session.json
//	<results>/<session>/result.json
//	<screenshots>/<session>/01-login-page.png
type ArtifactStore struct {
	store          ObjectStore
	resultPath     string
	screenshotPath string
	logger         *zap.Logger
}

// NewArtifactStore creates an archive on store. Empty paths default to
// "results" and "screenshots".
func NewArtifactStore(store ObjectStore, resultPath, screenshotPath string, logger *zap.Logger) *ArtifactStore {
	if resultPath == "" {
		resultPath = "results"
	}
	if screenshotPath == "" {
		screenshotPath = "screenshots"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactStore{
		store:          store,
		resultPath:     strings.Trim(resultPath, "/"),
		screenshotPath: strings.Trim(screenshotPath, "/"),
		logger:         logger.Named("archive"),
	}
}

// Archive writes session inputs, screenshots and result. It returns the
// URI of the stored result.
func (a *ArtifactStore) Archive(ctx context.Context, session *domain.Session, screenshots []domain.Screenshot, result *domain.GenerationResult) (string, error) {
	if session == nil || session.ID == "" {
		return "", fmt.Errorf("archive: session id is required")
	}

	meta := map[string]string{"session-id": session.ID}

	for i, shot := range screenshots {
		key := a.ScreenshotKey(session.ID, i, shot)
		if _, err := a.store.Put(ctx, key, shot.Data, mimeType(shot), meta); err != nil {
			return "", fmt.Errorf("archiving screenshot %d: %w", i+1, err)
		}
	}

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	if _, err := a.store.Put(ctx, a.sessionKey(session.ID), sessionJSON, "application/json", meta); err != nil {
		return "", fmt.Errorf("archiving session: %w", err)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	uri, err := a.store.Put(ctx, a.resultKey(session.ID), resultJSON, "application/json", meta)
	if err != nil {
		return "", fmt.Errorf("archiving result: %w", err)
	}

	a.logger.Info("session archived",
		zap.String("session_id", session.ID),
		zap.Int("screenshots", len(screenshots)),
		zap.Int("test_cases", len(result.AllTestCases)),
		zap.String("uri", uri),
	)
	return uri, nil
}

// LoadSession reads archived session inputs. An unknown id yields nil, nil.
func (a *ArtifactStore) LoadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := a.store.Get(ctx, a.sessionKey(sessionID))
	if errors.Is(err, ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

// ScreenshotKey builds the object key for the i-th screenshot. The index
// prefix keeps lexical order equal to journey order.
func (a *ArtifactStore) ScreenshotKey(sessionID string, i int, shot domain.Screenshot) string {
	name := slug(strings.TrimSuffix(shot.Name, path.Ext(shot.Name)))
	if name == "" {
		name = "screenshot"
	}
	return path.Join(a.screenshotPath, sessionID, fmt.Sprintf("%02d-%s%s", i+1, name, extension(mimeType(shot))))
}

func (a *ArtifactStore) resultKey(sessionID string) string {
	return path.Join(a.resultPath, sessionID, "result.json")
}

func (a *ArtifactStore) sessionKey(sessionID string) string {
	return path.Join(a.resultPath, sessionID, "session.json")
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func mimeType(shot domain.Screenshot) string {
	if shot.MimeType != "" {
		return shot.MimeType
	}
	switch strings.ToLower(path.Ext(shot.Name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return "image/png"
}

func extension(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".png"
}
