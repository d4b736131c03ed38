// Package attachments stores jobsheet scans and other files attached to a job.
package attachments

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
)

// Store is the attachment storage contract.
type Store interface {
	// Put uploads r under a key derived from jobID and name and returns the key.
	Put(ctx context.Context, jobID uuid.UUID, name string, r io.Reader, size int64, contentType string) (string, error)
	// PresignedURL returns a time-limited download URL for key.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ObjectKey returns the object key for an attachment of jobID.
// Keys look like jobs/<job id>/<unix nanos>-<sanitized name>.
func ObjectKey(jobID uuid.UUID, name string, now time.Time) string {
	return fmt.Sprintf("jobs/%s/%d-%s", jobID, now.UnixNano(), sanitizeName(name))
}

// ContentTypeFor validates the file extension of name and returns its MIME
// type. An explicit contentType wins when given.
func ContentTypeFor(name, contentType string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	mime, ok := constants.AllowedAttachmentExtensions[ext]
	if !ok {
		return "", common.NewValidationError(fmt.Sprintf("attachment %q: unsupported file type %q", name, ext))
	}
	if contentType != "" {
		return contentType, nil
	}
	return mime, nil
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
