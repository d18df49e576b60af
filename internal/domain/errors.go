package domain

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Domain errors.
var (
	// ErrInvalidURL is returned when the submitted URL is empty or not http(s).
	ErrInvalidURL = errors.New("invalid video URL")

	// ErrResolution is returned when a URL is unreachable, unsupported, or has no formats.
	ErrResolution = errors.New("could not resolve video")

	// ErrDownload is returned when resolution succeeded but fetching the rendition failed.
	ErrDownload = errors.New("video download failed")

	// ErrDelivery is returned when the file was ready but the chat platform rejected it.
	ErrDelivery = errors.New("downloaded but could not be sent")

	// ErrUploadExhausted is returned when every upload backend failed or was too small.
	ErrUploadExhausted = errors.New("all upload backends failed")

	// ErrSizeLimitExceeded is returned when a file is larger than every backend accepts.
	ErrSizeLimitExceeded = errors.New("file exceeds every size limit")

	// ErrInsufficientSpace is returned when the work directory cannot hold the predicted download.
	ErrInsufficientSpace = errors.New("not enough disk space")

	// ErrQueueFull is returned when the worker queue cannot accept another request.
	ErrQueueFull = errors.New("request queue is full")

	// ErrShuttingDown is returned for requests that were queued when the service stopped.
	ErrShuttingDown = errors.New("service is shutting down")

	// ErrInternal is reported for unexpected failures such as a recovered panic.
	ErrInternal = errors.New("internal error")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")
)

// SizeLimitError reports a predicted or actual size that no backend can take.
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s: %s exceeds limit of %s",
		ErrSizeLimitExceeded, humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
}

// Is lets errors.Is match ErrSizeLimitExceeded.
func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimitExceeded
}

// FetchError wraps an error with request context.
type FetchError struct {
	RequestID RequestID
	Op        string
	Err       error
}

func (e *FetchError) Error() string {
	if e.RequestID != "" {
		return e.Op + " [" + e.RequestID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(requestID RequestID, op string, err error) *FetchError {
	return &FetchError{
		RequestID: requestID,
		Op:        op,
		Err:       err,
	}
}
