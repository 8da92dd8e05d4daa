// Package uploader drives one archive through the platform's draft lifecycle:
// clear any stale draft, open a new one, upload the pages in windows, then
// commit or roll back.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"go-mangadex-upload/internal/api"
	"go-mangadex-upload/internal/archive"
	"go-mangadex-upload/internal/helpers"
	"go-mangadex-upload/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	ErrDraftConflict = errors.New("stale draft could not be removed")
	ErrOpenDraft     = errors.New("draft could not be opened")
	ErrPartialUpload = errors.New("some pages were not acknowledged")
	ErrUploadFailed  = errors.New("page upload failed")
	ErrCommitFailed  = errors.New("draft could not be committed")
)

// DefaultRollbackTimeout bounds the draft deletion that runs after a failure
// or cancellation.
const DefaultRollbackTimeout = 30 * time.Second

// API is the part of the platform client the uploader needs.
type API interface {
	GetUploadSession(ctx context.Context) (models.UploadSession, error)
	BeginUploadSession(ctx context.Context, seriesID string, groupIDs []string) (models.UploadSession, error)
	DeleteUploadSession(ctx context.Context, sessionID string) error
	UploadImages(ctx context.Context, sessionID string, files []api.ImageFile) (models.ImageUploadResponse, error)
	CommitUploadSession(ctx context.Context, sessionID string, commit models.CommitRequest) (models.CommitResponse, error)
}

// Authenticator replaces a rejected session token.
type Authenticator interface {
	Reauthenticate(ctx context.Context) error
	// Invalidate marks the session unusable after the platform rejected it.
	Invalidate()
}

// Result describes what happened to one archive.
type Result struct {
	Archive   string
	DraftID   string
	ChapterID string
	Pages     int
	MovedTo   string
	State     State
}

// Uploader runs the draft lifecycle for one archive at a time.
type Uploader struct {
	client          API
	auth            Authenticator
	policy          api.RetryPolicy
	windowSize      int
	uploadedDir     string
	RollbackTimeout time.Duration
	// Out receives the short human readable progress lines.
	Out io.Writer
}

// New builds an Uploader from the uploader settings in cfg.
func New(client API, auth Authenticator, cfg models.Config, policy api.RetryPolicy) *Uploader {
	return &Uploader{
		client:          client,
		auth:            auth,
		policy:          policy.WithAuthRejected(auth.Invalidate).WithAuthHandler(auth.Reauthenticate),
		windowSize:      cfg.ImagesPerBatch,
		uploadedDir:     cfg.UploadedFolder,
		RollbackTimeout: DefaultRollbackTimeout,
		Out:             io.Discard,
	}
}

func (u *Uploader) printf(format string, args ...any) {
	if u.Out != nil {
		fmt.Fprintf(u.Out, format, args...)
	}
}

// Upload uploads the archive at archivePath as the chapter described by meta.
// A draft opened here is always committed or deleted before Upload returns.
func (u *Uploader) Upload(ctx context.Context, archivePath string, meta models.ChapterMetadata) (res Result, err error) {
	name := filepath.Base(archivePath)
	res = Result{Archive: name, State: StateIdle}
	logger := log.WithField("archive", name)

	batcher, err := archive.OpenBatcher(archivePath, u.windowSize)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	defer batcher.Close()
	res.Pages = batcher.Len()

	res.State = StateClearingStaleDraft
	if _, err = u.clearStaleDraft(ctx); err != nil {
		res.State = StateFailed
		return res, err
	}

	res.State = StateDraftOpen
	draftID, err := u.openDraft(ctx, meta)
	if err != nil {
		res.State = StateFailed
		// The platform may have created the draft before the cancellation
		// reached it.
		if ctx.Err() != nil && u.discardAfterCancel(ctx, logger) {
			res.State = StateRolledBack
		}
		return res, err
	}
	res.DraftID = draftID
	logger = logger.WithField("draft", draftID)
	logger.Infof("Opened draft for %s", meta)

	committed := false
	defer func() {
		if !committed {
			u.rollback(ctx, draftID, logger)
			res.State = StateRolledBack
		}
	}()

	res.State = StateUploadingBatch
	remoteIDs, err := u.uploadPages(ctx, draftID, batcher, logger)
	if err != nil {
		return res, err
	}

	res.State = StateCommitting
	chapterID, err := u.commit(ctx, draftID, meta, pageOrder(remoteIDs))
	if err != nil {
		return res, err
	}
	committed = true
	res.ChapterID = chapterID
	res.State = StateCommitted
	logger.WithField("chapter", chapterID).Infof("Committed %d pages", len(remoteIDs))
	u.printf("Committed %s as chapter %s.\n", name, chapterID)

	// Release the archive before moving it.
	batcher.Close()
	moved, err := archive.MoveToUploaded(archivePath, u.uploadedDir)
	if err != nil {
		logger.WithError(err).Error("Chapter committed but the archive could not be moved")
		u.printf("Could not move %s to %s: %v\n", name, u.uploadedDir, err)
		return res, nil
	}
	res.MovedTo = moved
	return res, nil
}

// clearStaleDraft removes the account's open draft, if any, and returns its id.
func (u *Uploader) clearStaleDraft(ctx context.Context) (string, error) {
	var removed string
	err := u.policy.Named("clear stale draft").Do(ctx, func(ctx context.Context, attempt int) error {
		session, err := u.client.GetUploadSession(ctx)
		if errors.Is(err, api.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		log.WithField("draft", session.ID).Warn("Found an open draft from an earlier run, deleting it")
		if err := u.client.DeleteUploadSession(ctx, session.ID); err != nil && !errors.Is(err, api.ErrNotFound) {
			return err
		}
		removed = session.ID
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrDraftConflict, err)
	}
	return removed, nil
}

func (u *Uploader) openDraft(ctx context.Context, meta models.ChapterMetadata) (string, error) {
	var session models.UploadSession
	err := u.policy.Named("open draft").Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		session, err = u.client.BeginUploadSession(ctx, meta.SeriesID, meta.GroupIDs)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrOpenDraft, err)
	}
	return session.ID, nil
}

func (u *Uploader) uploadPages(ctx context.Context, draftID string, batcher *archive.Batcher, logger *log.Entry) (map[int]string, error) {
	remoteIDs := make(map[int]string, batcher.Len())
	window := batcher.First()
	for {
		pages, next, err := batcher.Read(window)
		if err != nil {
			return nil, fmt.Errorf("%w: reading pages %s: %w", ErrUploadFailed, window, err)
		}
		u.printf("Uploading images %s of %d.\n", window, batcher.Len())
		if err := u.uploadWindow(ctx, draftID, window, pages, remoteIDs, logger); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: pages %s: %w", ErrUploadFailed, window, err)
		}
		if next == nil {
			break
		}
		window = *next
	}
	if len(remoteIDs) != batcher.Len() {
		return nil, fmt.Errorf("%w: %d of %d pages acknowledged", ErrUploadFailed, len(remoteIDs), batcher.Len())
	}
	return remoteIDs, nil
}

// uploadWindow posts one window, resubmitting only the pages the platform has
// not acknowledged. Acknowledgements are matched by page key, never position.
func (u *Uploader) uploadWindow(ctx context.Context, draftID string, window archive.Window, pages []archive.Page, remoteIDs map[int]string, logger *log.Entry) error {
	pending := make(map[int]archive.Page, len(pages))
	for _, p := range pages {
		pending[p.Index] = p
	}

	return u.policy.Named("upload pages "+window.String()).Do(ctx, func(ctx context.Context, attempt int) error {
		files := pendingFiles(pending)
		resp, err := u.client.UploadImages(ctx, draftID, files)
		if err != nil {
			return err
		}

		for _, img := range resp.Data {
			index, err := archive.ParsePageKey(img.Attributes.OriginalFileName)
			if err != nil {
				logger.WithError(err).Warn("Platform acknowledged a file we did not send")
				continue
			}
			page, ok := pending[index]
			if !ok {
				logger.Debugf("Page %d acknowledged twice or outside this window", index)
				continue
			}
			remoteIDs[index] = img.ID
			delete(pending, index)
			u.printf("Uploaded page %s, size: %s.\n", page.Name, helpers.BytesToSize(uint64(img.Attributes.FileSize)))
		}

		if len(resp.Errors) > 0 || resp.Result == "error" {
			logger.WithField("errors", resp.Errors).Warn("Some images errored out")
		}
		if len(pending) > 0 {
			return fmt.Errorf("%w: %d of %d pages still pending", ErrPartialUpload, len(pending), len(pages))
		}
		return nil
	})
}

func pendingFiles(pending map[int]archive.Page) []api.ImageFile {
	indices := make([]int, 0, len(pending))
	for i := range pending {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	files := make([]api.ImageFile, 0, len(indices))
	for _, i := range indices {
		p := pending[i]
		files = append(files, api.ImageFile{
			Key:         p.Key,
			FileName:    p.FileName,
			ContentType: p.ContentType,
			Data:        p.Data,
		})
	}
	return files
}

// pageOrder lists remote ids in page index order.
func pageOrder(remoteIDs map[int]string) []string {
	indices := make([]int, 0, len(remoteIDs))
	for i := range remoteIDs {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	order := make([]string, len(indices))
	for n, i := range indices {
		order[n] = remoteIDs[i]
	}
	return order
}

func (u *Uploader) commit(ctx context.Context, draftID string, meta models.ChapterMetadata, order []string) (string, error) {
	req := models.CommitRequest{ChapterDraft: meta.Draft(), PageOrder: order}
	var resp models.CommitResponse
	err := u.policy.Named("commit").Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		resp, err = u.client.CommitUploadSession(ctx, draftID, req)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return resp.Data.ID, nil
}

// detached outlives the cancellation of ctx for at most RollbackTimeout.
func (u *Uploader) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := u.RollbackTimeout
	if timeout <= 0 {
		timeout = DefaultRollbackTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// discardAfterCancel deletes a draft whose creation was interrupted and
// reports whether one was found.
func (u *Uploader) discardAfterCancel(ctx context.Context, logger *log.Entry) bool {
	dctx, cancel := u.detached(ctx)
	defer cancel()

	draftID, err := u.clearStaleDraft(dctx)
	if err != nil {
		logger.WithError(err).Error("Could not check for a draft opened before cancellation, it will be removed before the next upload")
		return false
	}
	if draftID == "" {
		return false
	}
	logger.WithField("draft", draftID).Info("Deleted draft opened before cancellation")
	return true
}

// rollback deletes the draft on a context that outlives ctx's cancellation.
func (u *Uploader) rollback(ctx context.Context, draftID string, logger *log.Entry) {
	rctx, cancel := u.detached(ctx)
	defer cancel()

	err := u.policy.Named("rollback").Do(rctx, func(ctx context.Context, attempt int) error {
		err := u.client.DeleteUploadSession(ctx, draftID)
		if errors.Is(err, api.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		logger.WithError(err).Error("Could not delete draft, it will be removed before the next upload")
		u.printf("Could not delete draft %s: %v\n", draftID, err)
		return
	}
	logger.Info("Deleted draft")
}

// DiscardOpenDraft deletes the account's open draft and returns its id, or
// "" when there was none.
func (u *Uploader) DiscardOpenDraft(ctx context.Context) (string, error) {
	return u.clearStaleDraft(ctx)
}

// CurrentDraft returns the account's open draft, or nil when there is none.
func (u *Uploader) CurrentDraft(ctx context.Context) (*models.UploadSession, error) {
	var session *models.UploadSession
	err := u.policy.Named("get draft").Do(ctx, func(ctx context.Context, attempt int) error {
		s, err := u.client.GetUploadSession(ctx)
		if errors.Is(err, api.ErrNotFound) {
			session = nil
			return nil
		}
		if err != nil {
			return err
		}
		session = &s
		return nil
	})
	return session, err
}
