package constants

import "strings"

// SourceType classifies the upload for the extraction path.
const (
	SourcePDF   = "PDF"
	SourceImage = "IMAGE"
)

// AllowedExtensions holds the allowed file extensions for receipt uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether the (possibly dotted, mixed-case) extension is accepted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// MapExtToSource maps a normalized extension to its source type, or "" if unsupported.
func MapExtToSource(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return SourcePDF
	case "jpg", "jpeg", "png":
		return SourceImage
	}
	return ""
}
