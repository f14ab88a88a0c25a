// Package display formats object metadata for people: masked titles,
// header-safe file names and readable sizes.
package display

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const (
	protectedName = "Protected File"
	fallbackName  = "file"
)

var releaseInfoRegexp = regexp.MustCompile(`(?i)((19|20)\d{2}|4k|2160p|1080p|720p|480p|360p|HEVC|x265|BluRay|WEB-DL|HDRip)`)

// MaskFilename hides most of a title while keeping release details such as
// year and resolution readable, e.g. "Big.Buck.Bunny.2008.1080p.mkv" becomes
// "B**.**c*.B**n* 2008.1080p.mkv".
func MaskFilename(name string) string {
	if name == "" {
		return protectedName
	}
	base, ext := splitExt(name)
	title, info := base, ""
	if loc := releaseInfoRegexp.FindStringIndex(base); loc != nil {
		title = strings.Trim(base[:loc[0]], " .-_")
		info = base[loc[0]:]
	}

	var masked strings.Builder
	for i, r := range []rune(title) {
		switch {
		case !isAlnum(r):
			masked.WriteRune(r)
		case i%3 == 0:
			masked.WriteRune(r)
		default:
			masked.WriteRune('*')
		}
	}
	return strings.TrimSpace(masked.String() + " " + info + ext)
}

// SafeFilename keeps only characters that are safe inside a URL path segment
// and a quoted Content-Disposition filename.
func SafeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isAlnum(r) || r == ' ' || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimRight(b.String(), " ")
	if safe == "" {
		return fallbackName
	}
	return safe
}

var sizeLabels = []string{"B", "KB", "MB", "GB"}

// ReadableSize renders size in powers of 1024 with two decimals, e.g.
// "1.50 KB". GB is the largest unit.
func ReadableSize(size int64) string {
	if size <= 0 {
		return "0B"
	}
	v := float64(size)
	n := 0
	for v >= 1024 && n < len(sizeLabels)-1 {
		v /= 1024
		n++
	}
	return fmt.Sprintf("%.2f %s", v, sizeLabels[n])
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// splitExt splits off the extension; a leading dot does not start one.
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == name || strings.TrimLeft(name, ".") == strings.TrimPrefix(ext, ".") {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
