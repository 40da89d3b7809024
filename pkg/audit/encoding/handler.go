package encoding

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const (
	// sniffLen is the number of bytes used by http.DetectContentType
	sniffLen = 512
	// checkLen is a buffer size used for null byte checks.
	checkLen = 1024
	// Null byte threshold percentage to consider a file binary.
	nullThreshold = 0.15
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// xmlDeclEncoding picks the encoding pseudo-attribute out of an XML declaration.
var xmlDeclEncoding = regexp.MustCompile(`^<\?xml[^>]*\sencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

var knownTextMIMEPrefixes = map[string]bool{
	"text/":                 true,
	"application/xml":       true,
	"application/rdf+xml":   true,
	"application/owl+xml":   true,
	"application/ld+json":   true,
	"application/json":      true,
	"application/n-triples": true,
}

// EncodingHandler normalizes ontology bytes to UTF-8 and flags binary input.
type EncodingHandler interface {
	// DetectAndDecode returns content as UTF-8 together with the IANA name of
	// the source encoding and whether the detection was certain.
	DetectAndDecode(content []byte) (utf8Content []byte, detectedEncoding string, certainty bool, err error)

	// IsBinary checks MIME sniffing on the first 512 bytes and the null byte
	// ratio of the first 1024 bytes.
	IsBinary(content []byte) bool
}

type goCharsetEncodingHandler struct {
	defaultEncoding string
}

// NewGoCharsetEncodingHandler creates a handler that falls back to
// defaultEncoding when detection is uncertain.
func NewGoCharsetEncodingHandler(defaultEncoding string) EncodingHandler {
	return &goCharsetEncodingHandler{defaultEncoding: defaultEncoding}
}

// DetectAndDecode implements EncodingHandler. Valid UTF-8 is returned with
// its BOM stripped; otherwise an XML declaration wins over byte sniffing.
func (h *goCharsetEncodingHandler) DetectAndDecode(content []byte) ([]byte, string, bool, error) {
	if bytes.HasPrefix(content, utf8BOM) {
		return content[len(utf8BOM):], "utf-8", true, nil
	}
	if utf8.Valid(content) && !hasUTF16BOM(content) {
		return content, "utf-8", true, nil
	}

	if m := xmlDeclEncoding.FindSubmatch(content); m != nil {
		if enc, name := charset.Lookup(string(m[1])); enc != nil {
			return decodeWith(content, enc.NewDecoder(), name, true)
		}
	}

	enc, name, certain := charset.DetermineEncoding(content, "")
	if !certain && h.defaultEncoding != "" {
		if fallback, fallbackName := charset.Lookup(h.defaultEncoding); fallback != nil {
			enc, name, certain = fallback, fallbackName, true
		}
	}
	if enc == nil {
		return content, "utf-8", certain, nil
	}
	return decodeWith(content, enc.NewDecoder(), name, certain)
}

func decodeWith(content []byte, decoder transform.Transformer, name string, certain bool) ([]byte, string, bool, error) {
	utf8Content, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), decoder))
	if err != nil {
		if name == "" {
			name = "unknown"
		}
		return content, name, certain, fmt.Errorf("failed to convert from '%s': %w", name, err)
	}
	return bytes.TrimPrefix(utf8Content, utf8BOM), name, certain, nil
}

func hasUTF16BOM(content []byte) bool {
	return bytes.HasPrefix(content, []byte{0xFF, 0xFE}) || bytes.HasPrefix(content, []byte{0xFE, 0xFF})
}

func isMIMETextBased(contentType string) bool {
	mimeType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if strings.HasPrefix(mimeType, "text/") || knownTextMIMEPrefixes[mimeType] {
		return true
	}
	if strings.HasSuffix(mimeType, "+xml") {
		return true
	}
	// octet-stream is left to the null byte check
	return mimeType == "application/octet-stream"
}

// IsBinary implements EncodingHandler.
func (h *goCharsetEncodingHandler) IsBinary(content []byte) bool {
	if len(content) == 0 || hasUTF16BOM(content) {
		return false
	}

	sniff := content
	if len(sniff) > sniffLen {
		sniff = sniff[:sniffLen]
	}
	if !isMIMETextBased(http.DetectContentType(sniff)) {
		return true
	}

	check := content
	if len(check) > checkLen {
		check = check[:checkLen]
	}
	nullCount := bytes.Count(check, []byte{0x00})
	return float64(nullCount)/float64(len(check)) > nullThreshold
}
