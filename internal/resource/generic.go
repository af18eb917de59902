// Package resource implements the MRCP resource catalogue: the registry
// mapping resource/method/event names to ids, and the generic + per-resource
// header vtables the message parser and generator dispatch through.
package resource

import "firestige.xyz/mrcpd/internal/stream"

// Generic header ids. Generic headers occupy ids [0, GenericCount); every
// resource-specific table starts numbering its own fields at GenericCount.
const (
	HeaderActiveRequestIDList = iota
	HeaderProxySyncID
	HeaderAcceptCharset
	HeaderContentType
	HeaderContentID
	HeaderContentBase
	HeaderContentEncoding
	HeaderContentLocation
	HeaderContentLength
	HeaderCacheControl
	HeaderLoggingTag
	HeaderChannelIdentifier

	GenericCount
)

var genericNames = [GenericCount]string{
	HeaderActiveRequestIDList: "Active-Request-Id-List",
	HeaderProxySyncID:         "Proxy-Sync-Id",
	HeaderAcceptCharset:       "Accept-Charset",
	HeaderContentType:         "Content-Type",
	HeaderContentID:           "Content-Id",
	HeaderContentBase:         "Content-Base",
	HeaderContentEncoding:     "Content-Encoding",
	HeaderContentLocation:     "Content-Location",
	HeaderContentLength:       "Content-Length",
	HeaderCacheControl:        "Cache-Control",
	HeaderLoggingTag:          "Logging-Tag",
	HeaderChannelIdentifier:   "Channel-Identifier",
}

// GenericNameByID returns the canonical generation-time name for a
// generic header id, or "" if out of range.
func GenericNameByID(id int) string {
	if id < 0 || id >= GenericCount {
		return ""
	}
	return genericNames[id]
}

// ParseGenericField maps a raw wire field to a generic header id by
// case-insensitive name match. It returns ok=false when the name is not
// one of the generic headers, so the caller can fall through to the
// resource-specific table (or drop the field with a warning).
func ParseGenericField(raw stream.HeaderField) (stream.Field, bool) {
	for id, name := range genericNames {
		if foldEqual(raw.Name, name) {
			return stream.Field{ID: id, Name: name, Value: raw.Value}, true
		}
	}
	return stream.Field{}, false
}

func foldEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
