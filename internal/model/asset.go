package model

import (
	"fmt"
	"strings"
)

// AssetClass is the media kind of an asset. It names the class directory
// in the archive layout.
type AssetClass string

const (
	ClassImage    AssetClass = "image"
	ClassVideo    AssetClass = "video"
	ClassDocument AssetClass = "document"
)

// AssetClasses lists every class in archive layout order.
var AssetClasses = []AssetClass{ClassImage, ClassVideo, ClassDocument}

var extensionClasses = map[string]AssetClass{
	"jpg": ClassImage, "jpeg": ClassImage, "png": ClassImage, "gif": ClassImage,
	"bmp": ClassImage, "tif": ClassImage, "tiff": ClassImage, "webp": ClassImage,
	"heic": ClassImage, "heif": ClassImage, "dng": ClassImage, "cr2": ClassImage,
	"cr3": ClassImage, "nef": ClassImage, "arw": ClassImage, "raf": ClassImage,
	"orf": ClassImage, "rw2": ClassImage, "pef": ClassImage, "srw": ClassImage,

	"mp4": ClassVideo, "mov": ClassVideo, "avi": ClassVideo, "mkv": ClassVideo,
	"m4v": ClassVideo, "mts": ClassVideo, "m2ts": ClassVideo, "3gp": ClassVideo,
	"wmv": ClassVideo, "mpg": ClassVideo, "mpeg": ClassVideo, "webm": ClassVideo,

	"pdf": ClassDocument, "doc": ClassDocument, "docx": ClassDocument,
	"txt": ClassDocument, "md": ClassDocument, "rtf": ClassDocument,
	"odt": ClassDocument, "xls": ClassDocument, "xlsx": ClassDocument,
	"csv": ClassDocument, "ppt": ClassDocument, "pptx": ClassDocument,
}

// ClassForExtension maps a file extension (with or without the leading dot,
// any case) to its asset class.
func ClassForExtension(ext string) (AssetClass, bool) {
	c, ok := extensionClasses[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return c, ok
}

// HardwareCategory is the capture-hardware bucket of an asset. Named
// categories come from the hardware rule table; Other and Unknown always exist.
type HardwareCategory string

const (
	// CategoryOther is used when metadata is present but no rule matches.
	CategoryOther HardwareCategory = "other"
	// CategoryUnknown is used when metadata could not be obtained.
	CategoryUnknown HardwareCategory = "unknown"
)

// AssetState is the lifecycle state of an asset.
type AssetState string

const (
	StateStaged             AssetState = "STAGED"
	StateHashed             AssetState = "HASHED"
	StateClassified         AssetState = "CLASSIFIED"
	StatePathAssigned       AssetState = "PATH_ASSIGNED"
	StateRelocated          AssetState = "RELOCATED"
	StateVerified           AssetState = "VERIFIED"
	StateFinalized          AssetState = "FINALIZED"
	StateVerificationFailed AssetState = "VERIFICATION_FAILED"
)

var assetTransitions = map[AssetState][]AssetState{
	StateStaged:       {StateHashed},
	StateHashed:       {StateClassified},
	StateClassified:   {StatePathAssigned},
	StatePathAssigned: {StateRelocated},
	StateRelocated:    {StateVerified, StateVerificationFailed},
	StateVerified:     {StateFinalized},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s AssetState) CanTransition(next AssetState) bool {
	for _, allowed := range assetTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known lifecycle state.
func (s AssetState) Valid() bool {
	switch s {
	case StateStaged, StateHashed, StateClassified, StatePathAssigned,
		StateRelocated, StateVerified, StateFinalized, StateVerificationFailed:
		return true
	}
	return false
}

// Advance moves the asset to next, enforcing the lifecycle.
func (a *Asset) Advance(next AssetState) error {
	if !a.State.CanTransition(next) {
		return fmt.Errorf("asset %s: invalid transition %s -> %s", a.ID, a.State, next)
	}
	a.State = next
	return nil
}

// EntryState is the processing state of a staging entry.
type EntryState string

const (
	EntryPending            EntryState = "pending"
	EntryRelocated          EntryState = "relocated"
	EntryDuplicate          EntryState = "duplicate"
	EntrySkipped            EntryState = "skipped"
	EntryVerificationFailed EntryState = "verification_failed"
)
