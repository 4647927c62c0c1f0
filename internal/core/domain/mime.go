package domain

import (
	"mime"
	"path"
	"strings"
)

// Well-known MIME types.
const (
	MIMEOctetStream = "application/octet-stream"
	MIMEPlainText   = "text/plain"
	MIMEHTML        = "text/html"
	MIMEZip         = "application/zip"
	MIMEPDF         = "application/pdf"
	MIMEMessage     = "message/rfc822"
	MIMECDFV2       = "application/CDFV2"

	// Internal types used by derived Sources.
	MIMEPDFPage        = "application/x.os2datascanner.pdf-page"
	MIMESpreadsheet    = "application/x.os2datascanner.spreadsheet"
	MIMESpreadsheetRow = "application/x.os2datascanner.spreadsheet-row"
)

// GenericMIMETypes are content-derived types that a more specific guess by
// name should override.
var GenericMIMETypes = []string{MIMEZip, MIMECDFV2, MIMEPlainText, MIMEHTML}

var encodingTypes = map[string]string{
	".gz":  "application/gzip",
	".tgz": "application/gzip",
	".bz2": "application/x-bzip2",
	".xz":  "application/xz",
}

var extensionTypes = map[string]string{
	".txt":  MIMEPlainText,
	".text": MIMEPlainText,
	".csv":  "text/csv",
	".htm":  MIMEHTML,
	".html": MIMEHTML,
	".xml":  "text/xml",
	".json": "application/json",
	".eml":  MIMEMessage,
	".mht":  MIMEMessage,
	".zip":  MIMEZip,
	".pdf":  MIMEPDF,
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".doc":  "application/msword",
	".dot":  "application/msword",
	".xls":  "application/vnd.ms-excel",
	".ppt":  "application/vnd.ms-powerpoint",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".rtf":  "application/rtf",
}

// GuessType guesses a MIME type from a file name. Compressed names such as
// "doc.pdf.gz" map to the type of the compressed form.
func GuessType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return MIMEOctetStream
	}
	if t, ok := encodingTypes[ext]; ok {
		return t
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return MIMEOctetStream
}

// PreferType chooses between a type guessed from a name and one computed
// from content. Agreement wins; a generic computed type yields to any guess
// more specific than octet-stream; otherwise the computed type wins.
func PreferType(guessed, computed string) string {
	if guessed == computed {
		return computed
	}
	if isGeneric(computed) && guessed != MIMEOctetStream {
		return guessed
	}
	return computed
}

func isGeneric(t string) bool {
	for _, g := range GenericMIMETypes {
		if t == g {
			return true
		}
	}
	return false
}
