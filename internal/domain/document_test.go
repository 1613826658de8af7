package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateDocument(t *testing.T) {
	valid := func() *Document {
		return &Document{
			ID:         "d1",
			UserID:     "42",
			Filename:   "report.pdf",
			StorageKey: DocumentKey("42", "report.pdf"),
			SizeBytes:  1024,
			UploadedAt: time.Now(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(d *Document)
		wantErr bool
	}{
		{name: "valid document", mutate: func(d *Document) {}},
		{name: "missing id", mutate: func(d *Document) { d.ID = "" }, wantErr: true},
		{name: "bad user id", mutate: func(d *Document) { d.UserID = "../etc" }, wantErr: true},
		{name: "missing filename", mutate: func(d *Document) { d.Filename = "" }, wantErr: true},
		{name: "missing storage key", mutate: func(d *Document) { d.StorageKey = "" }, wantErr: true},
		{name: "negative size", mutate: func(d *Document) { d.SizeBytes = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			err := ValidateDocument(d)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, ValidateDocument(nil))
}

func TestValidateUserID(t *testing.T) {
	for _, ok := range []string{"1", "42", "user-7", "alice@example.com", "a.b_c"} {
		assert.NoError(t, ValidateUserID(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", "../x", "a/b", "-lead", "with space"} {
		assert.ErrorIs(t, ValidateUserID(bad), ErrInvalidUserID, bad)
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "users/7/", UserPrefix("7"))
	assert.Equal(t, "users/7/pdfs/a.pdf", DocumentKey("7", "a.pdf"))
	assert.Equal(t, "users/7/faiss/index.index", IndexKey("7", "index.index"))
}
