package provider

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const minHandleLength = 50

// handlePattern matches provider-issued media handles, e.g.
// 4::aW1hZ2UvcG5n:ARZ_tg...:e:1760802361:340384197887925:61580519339768:ARZ4Cd...
var handlePattern = regexp.MustCompile(`^\d{1,2}::[\w\-]+:[\w\-]+:[a-z]:\d{10,}:[\w\-]+:[\w\-]+:[\w\-]+$`)

// IsMediaHandle reports whether s already is a provider media handle. A miss
// only costs an extra upload.
func IsMediaHandle(s string) bool {
	return len(s) >= minHandleLength && handlePattern.MatchString(s)
}

// MIME groups by template (or carousel card header) type.
const (
	GroupImage    = "IMAGE"
	GroupVideo    = "VIDEO"
	GroupDocument = "DOCUMENT"
	GroupAudio    = "AUDIO"
)

var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".3gp":  "video/3gpp",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".txt":  "text/plain",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".amr":  "audio/amr",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
}

var mimeGroups = map[string]map[string]bool{
	GroupImage: {"image/jpeg": true, "image/png": true, "image/webp": true},
	GroupVideo: {"video/mp4": true, "video/3gpp": true},
	GroupDocument: {
		"application/pdf":    true,
		"application/msword": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
		"application/vnd.ms-powerpoint":                                             true,
		"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
		"application/vnd.ms-excel":                                                  true,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
		"text/plain": true,
	},
	GroupAudio: {
		"audio/aac": true, "audio/mp4": true, "audio/mpeg": true,
		"audio/amr": true, "audio/ogg": true, "audio/opus": true,
	},
}

var ErrInvalidMedia = errors.New("invalid media URL or file type")

// ValidateMediaURL checks that raw is an absolute http(s) URL whose path
// extension maps to a MIME type allowed for group. It returns that MIME type.
func ValidateMediaURL(raw, group string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: malformed URL %q", ErrInvalidMedia, raw)
	}

	allowed, ok := mimeGroups[strings.ToUpper(strings.TrimSpace(group))]
	if !ok {
		return "", fmt.Errorf("%w: unknown media group %q", ErrInvalidMedia, group)
	}

	mimeType, ok := mimeByExtension[path.Ext(strings.ToLower(u.Path))]
	if !ok {
		return "", fmt.Errorf("%w: cannot infer type of %q", ErrInvalidMedia, u.Path)
	}
	if !allowed[mimeType] {
		return mimeType, fmt.Errorf("%w: %s not allowed for %s", ErrInvalidMedia, mimeType, group)
	}
	return mimeType, nil
}

// mediaFilename is the last path segment of the media URL.
func mediaFilename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "media_file"
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "media_file"
	}
	return name
}
