package aupat_test

import (
	"path/filepath"
	"testing"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

func TestDeriveName(t *testing.T) {
	tests := []struct {
		name                         string
		loc, sub, digest, ext, want string
	}{
		{name: "location only", loc: "a1b2c3d4e5f6", digest: "0123456789ab", ext: ".JPG", want: "a1b2c3d4e5f6-0123456789ab.jpg"},
		{name: "with sub-location", loc: "a1b2c3d4e5f6", sub: "ffeeddccbbaa", digest: "0123456789ab", ext: ".mp4", want: "a1b2c3d4e5f6-ffeeddccbbaa-0123456789ab.mp4"},
		{name: "extension without dot", loc: "l", digest: "d", ext: "NEF", want: "l-d.nef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aupat.DeriveName(tt.loc, tt.sub, tt.digest, tt.ext); got != tt.want {
				t.Errorf("DeriveName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveArchivePath(t *testing.T) {
	loc := &model.Location{ID: "a1b2c3d4e5f6", Name: "Hudson Mill", Region: "ny", Type: "industrial"}

	got := aupat.DeriveArchivePath(loc, model.ClassImage, "phone", "a1b2c3d4e5f6-0123456789ab.heic")
	want := filepath.Join("ny-industrial", "Hudson Mill_a1b2c3d4e5f6", "image", "original_phone", "a1b2c3d4e5f6-0123456789ab.heic")
	if got != want {
		t.Errorf("DeriveArchivePath() = %q, want %q", got, want)
	}
	if dir := aupat.LocationDir(loc); dir != filepath.Join("ny-industrial", "Hudson Mill_a1b2c3d4e5f6") {
		t.Errorf("LocationDir() = %q", dir)
	}
}

func TestValidateLocation(t *testing.T) {
	tests := []struct {
		name    string
		loc     model.Location
		wantErr bool
	}{
		{name: "valid", loc: model.Location{Name: "Old Mill", Region: "ny", Type: "industrial"}},
		{name: "empty name", loc: model.Location{Name: " ", Region: "ny", Type: "industrial"}, wantErr: true},
		{name: "separator in name", loc: model.Location{Name: "a/b", Region: "ny", Type: "x"}, wantErr: true},
		{name: "dot-dot region", loc: model.Location{Name: "a", Region: "..", Type: "x"}, wantErr: true},
		{name: "empty type", loc: model.Location{Name: "a", Region: "ny"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := aupat.ValidateLocation(&tt.loc); (err != nil) != tt.wantErr {
				t.Errorf("ValidateLocation() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := aupat.ValidateSubLocation(&model.SubLocation{Name: `boiler\room`}); err == nil {
		t.Error("ValidateSubLocation() should reject a backslash")
	}
}
