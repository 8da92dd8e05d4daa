// Package orchestrator runs the upload queue one archive at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go-mangadex-upload/index"
	"go-mangadex-upload/internal/api"
	"go-mangadex-upload/internal/auth"
	"go-mangadex-upload/internal/helpers"
	"go-mangadex-upload/internal/models"
	"go-mangadex-upload/internal/uploader"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// ReauthEvery is how many upload attempts run between forced session checks.
const ReauthEvery = 5

// Parser turns an archive name into chapter metadata.
type Parser interface {
	Parse(archiveName string) (models.ChapterMetadata, error)
}

// Authenticator keeps the platform session valid.
type Authenticator interface {
	EnsureLoggedIn(ctx context.Context, forceCheck bool) error
}

// ChapterUploader uploads a single archive.
type ChapterUploader interface {
	Upload(ctx context.Context, archivePath string, meta models.ChapterMetadata) (uploader.Result, error)
}

// History remembers which archives were already committed.
type History interface {
	IsCommitted(fingerprint string) bool
	PutUpload(rec models.UploadRecord) error
}

// Deps are the collaborators of an Orchestrator. History and Index are optional.
type Deps struct {
	Parser   Parser
	Auth     Authenticator
	Uploader ChapterUploader
	History  History
	Index    bleve.Index
}

// Report summarizes a run.
type Report struct {
	Succeeded []string
	Skipped   []string
	Failures  []Failure
}

// Orchestrator processes jobs sequentially. The platform allows one open
// draft per account, so jobs never overlap.
type Orchestrator struct {
	deps           Deps
	interJobDelay  time.Duration
	skipDuplicates bool

	// Force uploads archives even when history says they were committed.
	Force bool
	Sleep api.Sleeper
	Out   io.Writer
}

// New builds an Orchestrator from the uploader settings in cfg.
func New(deps Deps, cfg models.Config) *Orchestrator {
	return &Orchestrator{
		deps:           deps,
		interJobDelay:  2 * time.Duration(cfg.RatelimitSeconds) * time.Second,
		skipDuplicates: cfg.SkipDuplicates,
		Sleep:          api.SleepContext,
		Out:            io.Discard,
	}
}

func (o *Orchestrator) printf(format string, args ...any) {
	if o.Out != nil {
		fmt.Fprintf(o.Out, format, args...)
	}
}

// Run uploads every job. Individual failures land in the report; only an
// empty queue, unrecoverable auth or cancellation end the run early.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) (Report, error) {
	var report Report
	failures := &FailureLog{}
	finish := func(err error) (Report, error) {
		report.Failures = failures.Entries()
		return report, err
	}

	if len(jobs) == 0 {
		return finish(ErrNoJobs)
	}

	logins := 0
	login := func() error {
		forceCheck := logins > 0 && logins%ReauthEvery == 0
		logins++
		return o.deps.Auth.EnsureLoggedIn(ctx, forceCheck)
	}

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if i > 0 {
			if err := o.Sleep(ctx, o.interJobDelay); err != nil {
				return finish(err)
			}
		}

		skipped, err := o.process(ctx, job, login)
		switch {
		case skipped:
			report.Skipped = append(report.Skipped, job.Name)
		case err != nil:
			o.fail(failures, job, err)
			if isRunFatal(ctx, err) {
				return finish(err)
			}
		default:
			report.Succeeded = append(report.Succeeded, job.Name)
		}
	}
	return finish(nil)
}

func isRunFatal(ctx context.Context, err error) bool {
	return errors.Is(err, auth.ErrUnrecoverableAuth) || ctx.Err() != nil
}

func (o *Orchestrator) fail(failures *FailureLog, job Job, err error) {
	if failures.Record(job.Name, err) {
		log.WithError(err).WithField("archive", job.Name).Error("Upload failed")
		o.printf("Failed to upload %s: %v\n", job.Name, err)
	}
}

// process uploads one archive. login runs only once the archive is known to
// need an upload.
func (o *Orchestrator) process(ctx context.Context, job Job, login func() error) (bool, error) {
	logger := log.WithField("archive", job.Name)

	fingerprint, err := helpers.FingerprintFile(job.Path)
	if err != nil {
		return false, err
	}
	if o.skipDuplicates && !o.Force && o.deps.History != nil && o.deps.History.IsCommitted(fingerprint) {
		logger.Info("Archive was already uploaded, skipping")
		o.printf("Skipping %s, already uploaded.\n", job.Name)
		return true, nil
	}

	meta, err := o.deps.Parser.Parse(job.Name)
	if err != nil {
		o.remember(models.UploadRecord{ArchiveName: job.Name, Fingerprint: fingerprint, Status: models.StatusFailed, ErrorDetails: err.Error()})
		return false, err
	}
	if err := login(); err != nil {
		err = fmt.Errorf("not logged in: %w", err)
		rec := recordFor(job, fingerprint, meta, uploader.Result{})
		rec.Status = models.StatusFailed
		rec.ErrorDetails = err.Error()
		o.remember(rec)
		return false, err
	}
	o.printf("Uploading %s: %s\n", job.Name, meta)

	res, err := o.deps.Uploader.Upload(ctx, job.Path, meta)
	rec := recordFor(job, fingerprint, meta, res)
	if err != nil {
		rec.Status = models.StatusFailed
		rec.ErrorDetails = err.Error()
		o.remember(rec)
		return false, err
	}

	rec.Status = models.StatusCommitted
	o.remember(rec)
	if o.deps.Index != nil {
		if err := index.IndexChapter(o.deps.Index, index.ChapterFromRecord(rec)); err != nil {
			logger.WithError(err).Warn("Could not index committed chapter")
		}
	}
	return false, nil
}

func (o *Orchestrator) remember(rec models.UploadRecord) {
	if o.deps.History == nil {
		return
	}
	rec.Timestamp = time.Now()
	if err := o.deps.History.PutUpload(rec); err != nil {
		log.WithError(err).WithField("archive", rec.ArchiveName).Warn("Could not record upload history")
	}
}

func recordFor(job Job, fingerprint string, meta models.ChapterMetadata, res uploader.Result) models.UploadRecord {
	rec := models.UploadRecord{
		ArchiveName: job.Name,
		Fingerprint: fingerprint,
		SeriesID:    meta.SeriesID,
		ChapterID:   res.ChapterID,
		Language:    meta.Language,
		GroupIDs:    meta.GroupIDs,
		Pages:       res.Pages,
		MovedTo:     res.MovedTo,
	}
	if meta.Volume != nil {
		rec.Volume = *meta.Volume
	}
	if meta.Chapter != nil {
		rec.Chapter = *meta.Chapter
	}
	if meta.Title != nil {
		rec.Title = *meta.Title
	}
	return rec
}

// Print writes the end-of-run summary.
func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Uploaded %d, skipped %d, failed %d.\n", len(r.Succeeded), len(r.Skipped), len(r.Failures))
	if len(r.Failures) == 0 {
		return
	}
	names := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		names[i] = f.Archive
	}
	fmt.Fprintf(w, "Failed uploads: %s\n", strings.Join(names, ", "))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s: %v\n", f.Archive, f.Err)
	}
}
