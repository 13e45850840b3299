package download

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTitleBytes   = 200
	fallbackTitle   = "video"
	unsafeFileChars = `/\:*?"<>|`
)

// SanitizeTitle turns an extracted title into something safe to use as a
// file name on any client OS.
func SanitizeTitle(title string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range title {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r), strings.ContainsRune(unsafeFileChars, r):
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}

	clean := strings.Trim(b.String(), " .")
	if len(clean) > maxTitleBytes {
		cut := maxTitleBytes
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
		clean = strings.TrimRight(clean[:cut], " .")
	}
	if clean == "" {
		return fallbackTitle
	}
	return clean
}

// ContentDisposition builds an attachment header for filename. Non-ASCII
// names get an RFC 5987 filename* parameter next to an ASCII fallback.
func ContentDisposition(filename string) string {
	ascii := asciiFallback(filename)
	if ascii == filename {
		return fmt.Sprintf(`attachment; filename="%s"`, filename)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii, encodeRFC5987(filename))
}

func asciiFallback(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func encodeRFC5987(s string) string {
	const attrChars = "!#$&+-.^_`|~"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || strings.IndexByte(attrChars, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// contentTypeFor maps the artifact extension to a MIME type.
func contentTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case "mp4", "m4v":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "mov":
		return "video/quicktime"
	case "3gp":
		return "video/3gpp"
	case "m4a":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "opus", "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
