package bindings

import (
	"context"

	"github.com/pkg/errors"

	"pkgbind/internal/callback"
	"pkgbind/internal/value"
	"pkgbind/pkg/media"
	"pkgbind/pkg/repo"
)

// Answers of the SourceReportError and MediaChange handlers.
const (
	answerAbort  = "ABORT"
	answerRetry  = "RETRY"
	answerIgnore = "IGNORE"
)

// errorKind classifies err for the host: NO_ERROR, NOT_FOUND, INVALID or IO.
func errorKind(err error) string {
	switch errors.Cause(err) {
	case nil:
		return "NO_ERROR"
	case media.ErrFileNotFound:
		return "NOT_FOUND"
	case repo.ErrBadSignature, repo.ErrInvalidAlias, repo.ErrUnknownType:
		return "INVALID"
	}
	return "IO"
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// sourceReport frames one task on a repository by the SourceReport events.
type sourceReport struct {
	ctx       context.Context
	callbacks *callback.Registry
	id        int64
	url       string
	task      string
}

func (p *PkgFunctions) startSourceReport(ctx context.Context, id int64, url, task string) *sourceReport {
	r := &sourceReport{
		ctx:       ctx,
		callbacks: p.callbacks,
		id:        id,
		url:       media.HidePassword(url),
		task:      task,
	}
	r.callbacks.Call(ctx, callback.SourceReportInit)
	r.callbacks.Call(ctx, callback.SourceReportStart, value.Int(id), value.String(r.url), value.String(task))
	return r
}

// progress reports percent; false asks to abort the task.
func (r *sourceReport) progress(percent int) bool {
	return r.callbacks.CallBool(r.ctx, true, callback.SourceReportProgress, value.Int(int64(percent)))
}

// problem reports err and returns the host's answer, ABORT by default.
func (r *sourceReport) problem(err error) string {
	return r.callbacks.CallString(r.ctx, answerAbort, callback.SourceReportError,
		value.Int(r.id), value.String(r.url), value.String(errorKind(err)), value.String(errorText(err)))
}

func (r *sourceReport) end(err error) {
	r.callbacks.Call(r.ctx, callback.SourceReportEnd, value.Int(r.id), value.String(r.url), value.String(r.task),
		value.String(errorKind(err)), value.String(errorText(err)))
	r.callbacks.Call(r.ctx, callback.SourceReportDestroy)
}

// mediaChange asks for medium nr of a volatile media set after err. An
// empty answer, RETRY or E (eject) retries, anything else gives up.
func (r *sourceReport) mediaChange(err error, product string, nr int64) bool {
	answer := r.callbacks.CallString(r.ctx, "C", callback.MediaChange,
		value.String(errorKind(err)), value.String(errorText(err)), value.String(r.url),
		value.String(product), value.Int(nr))
	switch answer {
	case "", answerRetry, "E":
		return true
	}
	return false
}

// retry decides whether a failed download from medium nr is repeated.
func (r *sourceReport) retry(err error, product string, nr int64) bool {
	if media.SchemeIsVolatile(media.Scheme(r.url)) {
		return r.mediaChange(err, product, nr)
	}
	return r.problem(err) == answerRetry
}
