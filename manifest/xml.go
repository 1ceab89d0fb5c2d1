package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// utf8NoBOM is x/text's plain UTF-8 encoder: it replaces ill-formed
// UTF-8 sequences and neither adds nor removes a byte-order mark. Render
// never writes a BOM, so none ends up in front of the <?xml?> declaration.
var utf8NoBOM = unicode.UTF8.NewEncoder()

// Render marshals media to its final XML document: an XML declaration,
// a generator comment naming this module and a per-call uuid (so
// repeated regenerations of the same manifest are distinguishable in
// logs without the id being part of the wire-format contract itself),
// and the indented <SmoothStreamingMedia> tree.
func Render(media *SmoothStreamingMedia) ([]byte, error) {
	body, err := xml.MarshalIndent(media, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: encoding xml: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(xml.Header)
	fmt.Fprintf(&out, "<!--Created with %s(%s)-->\n", Generator, uuid.New())
	out.Write(body)
	out.WriteByte('\n')

	clean, _, err := transform.Bytes(utf8NoBOM, out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("manifest: normalizing xml encoding: %w", err)
	}
	return clean, nil
}
