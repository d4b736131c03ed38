package attachments

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/internal/common"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        string
		wantErr     bool
	}{
		{name: "scan.PDF", want: "application/pdf"},
		{name: "photo.jpeg", want: "image/jpeg"},
		{name: "photo.png", contentType: "image/x-png", want: "image/x-png"},
		{name: "notes.txt", wantErr: true},
		{name: "noext", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ContentTypeFor(tt.name, tt.contentType)
		if tt.wantErr {
			if !errors.Is(err, common.ErrValidation) {
				t.Errorf("%s: err = %v, want validation", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: content type = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	id := uuid.MustParse("5f0c2a8e-2f1b-4a34-9d6e-3c0f1b2a4d10")
	now := time.Unix(1700000000, 0)

	key := ObjectKey(id, `C:\scans\job sheet #4.pdf`, now)
	want := "jobs/5f0c2a8e-2f1b-4a34-9d6e-3c0f1b2a4d10/1700000000000000000-job_sheet__4.pdf"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
	if k := ObjectKey(id, "../../etc/passwd.pdf", now); strings.Contains(k, "..") {
		t.Fatalf("key %q escapes the job prefix", k)
	}
}
