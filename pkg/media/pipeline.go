// Package media validates local files and uploads them to object storage
// with bounded retry, yielding the durable URL a message embeds. Upload and
// message creation stay two separate operations with no atomicity between
// them.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/errs"
	"github.com/mahaj/convosync/pkg/model"
	"github.com/mahaj/convosync/pkg/objectstore"
	"github.com/mahaj/convosync/pkg/retry"
)

// MaxFileSize is the upload ceiling enforced before any network call.
const MaxFileSize = 25 * 1024 * 1024

var contentTypes = map[model.MediaKind]map[string]string{
	model.MediaImage: {
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
	},
	model.MediaAudio: {
		".mp3": "audio/mpeg",
		".wav": "audio/wav",
		".m4a": "audio/mp4",
		".aac": "audio/aac",
		".ogg": "audio/ogg",
	},
	model.MediaVideo: {
		".mp4":  "video/mp4",
		".mov":  "video/quicktime",
		".webm": "video/webm",
	},
}

// Result carries the durable public URL and the storage path it lives under.
type Result struct {
	URL  string
	Path string
}

// StateFunc observes pending-upload transitions. Optional.
type StateFunc func(model.PendingUpload)

type Pipeline struct {
	store   objectstore.Store
	bucket  string
	maxSize int64
	policy  retry.Policy
	log     zerolog.Logger
	onState StateFunc
}

func NewPipeline(store objectstore.Store, bucket string, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		bucket:  bucket,
		maxSize: MaxFileSize,
		policy:  retry.DefaultPolicy(),
		log:     log.With().Str("component", "media").Logger(),
	}
}

// WithPolicy overrides the retry policy. Mainly for tests and tuning.
func (p *Pipeline) WithPolicy(policy retry.Policy) *Pipeline {
	p.policy = policy
	return p
}

// WithSizeLimit overrides the size ceiling.
func (p *Pipeline) WithSizeLimit(limit int64) *Pipeline {
	p.maxSize = limit
	return p
}

// OnState registers an observer for pending-upload state transitions.
func (p *Pipeline) OnState(fn StateFunc) *Pipeline {
	p.onState = fn
	return p
}

// Upload validates localPath against the size ceiling and the kind's
// content-type allowlist, then uploads with bounded exponential-backoff
// retry. Validation failures never reach the network. After the attempts are
// exhausted the failure is terminal; no message should reference the path.
func (p *Pipeline) Upload(ctx context.Context, localPath string, kind model.MediaKind) (Result, error) {
	pending := model.PendingUpload{LocalPath: localPath, Kind: kind, State: model.UploadValidating}
	p.notify(pending)

	contentType, data, err := p.validate(localPath, kind)
	if err != nil {
		pending.State = model.UploadFailed
		p.notify(pending)
		return Result{}, err
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	objectPath := fmt.Sprintf("%s/%s_%s%s", kind, kind, uuid.NewString(), ext)

	pending.State = model.UploadUploading
	p.notify(pending)

	err = p.policy.Do(ctx, func() error {
		pending.Attempts++
		return p.store.Upload(ctx, p.bucket, objectPath, data, contentType)
	}, func(attempt int, err error) {
		p.log.Warn().Err(err).Int("attempt", attempt).Str("path", objectPath).Msg("upload attempt failed")
		pending.State = model.UploadRetrying
		p.notify(pending)
	})
	if err != nil {
		pending.State = model.UploadFailed
		p.notify(pending)
		return Result{}, errs.Wrap(errs.Network, err, "upload failed after %d attempts", pending.Attempts)
	}

	pending.State = model.UploadSucceeded
	p.notify(pending)

	url := p.store.PublicURL(p.bucket, objectPath)
	p.log.Info().Str("url", url).Int("attempts", pending.Attempts).Msg("upload complete")
	return Result{URL: url, Path: objectPath}, nil
}

func (p *Pipeline) validate(localPath string, kind model.MediaKind) (string, []byte, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", nil, errs.ErrFileMissing
	}
	if info.Size() > p.maxSize {
		return "", nil, errs.ErrFileTooLarge
	}

	allowed, ok := contentTypes[kind]
	if !ok {
		return "", nil, errs.ErrUnsupportedType
	}
	contentType, ok := allowed[strings.ToLower(filepath.Ext(localPath))]
	if !ok {
		return "", nil, errs.ErrUnsupportedType
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", nil, errs.Wrap(errs.Validation, err, "read %s", localPath)
	}
	return contentType, data, nil
}

func (p *Pipeline) notify(pending model.PendingUpload) {
	if p.onState != nil {
		p.onState(pending)
	}
}
