// Package document loads and stores fully decoded SBOMs. Diff and merge
// operate on in-memory documents; loading reuses the streaming decoders
// with accumulating sinks.
package document

import (
	"os"
	"strings"

	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/detect"
	"github.com/sbomtools/sbomshift/pkg/log"
	"github.com/sbomtools/sbomshift/pkg/stream"
	"github.com/sbomtools/sbomshift/pkg/types"
	"github.com/sbomtools/sbomshift/pkg/xmlcodec"
)

// Load detects the format of the named file and decodes it completely.
func Load(path string) (types.Document, error) {
	eb := oops.With("file_path", path)

	res, err := detect.File(path)
	if err != nil {
		return types.Document{}, eb.Wrapf(err, "format detection failed")
	}

	f, err := os.Open(path)
	if err != nil {
		return types.Document{}, eb.Code("io_error").Wrapf(err, "file open error")
	}
	defer f.Close()

	doc := types.Document{Format: res.Format, Encoding: res.Encoding, SpecVersion: res.Version}

	if res.Encoding == types.EncodingXML {
		doc, err = xmlcodec.Decode(f)
		if err != nil {
			return types.Document{}, eb.Wrapf(err, "xml decode error")
		}
		warnDangling(path, &doc)
		return doc, nil
	}

	opts := stream.Options{
		Elements: func(_ int, e types.Element) error {
			doc.Elements = append(doc.Elements, e)
			return nil
		},
		Relationships: func(_ int, r types.Relationship) error {
			doc.Relationships = append(doc.Relationships, r)
			return nil
		},
		Vulnerabilities: func(_ int, v types.Vulnerability) error {
			doc.Vulnerabilities = append(doc.Vulnerabilities, v)
			return nil
		},
		Meta: func(m stream.Meta) {
			if m.SpecVersion != "" {
				doc.SpecVersion = m.SpecVersion
			}
			doc.Metadata = types.DocMetadata{
				Timestamp: m.Timestamp,
				Tool:      m.Tool,
				Serial:    m.Serial,
			}
		},
	}

	switch res.Format {
	case types.FormatCycloneDX:
		err = stream.DecodeCycloneDX(f, opts)
	default:
		err = stream.DecodeSPDX(f, opts)
	}
	if err != nil {
		return types.Document{}, eb.Wrapf(err, "decode error")
	}

	if res.Format == types.FormatSPDX {
		normalizeSPDXVulnerabilities(&doc)
	}
	warnDangling(path, &doc)
	return doc, nil
}

// normalizeSPDXVulnerabilities lifts vulnerability-typed elements and their
// AFFECTS relationships into the document's vulnerability list, mirroring
// the CycloneDX shape so diff and merge treat both formats alike.
func normalizeSPDXVulnerabilities(doc *types.Document) {
	// Indices, not pointers: the slice keeps growing in this loop and any
	// pointer taken here would go stale on the next append.
	vulnAt := make(map[string]int)
	var elements []types.Element

	for _, e := range doc.Elements {
		if e.Kind != types.KindVulnerability {
			elements = append(elements, e)
			continue
		}
		id := e.Name
		if id == "" {
			id = e.ID
		}
		doc.Vulnerabilities = append(doc.Vulnerabilities, types.Vulnerability{ID: id, Source: e.Description})
		vulnAt[e.ID] = len(doc.Vulnerabilities) - 1
	}
	doc.Elements = elements

	for _, rel := range doc.Relationships {
		if rel.Type != types.RelAffects && rel.VexState == "" {
			continue
		}
		i, ok := vulnAt[rel.Source]
		if !ok {
			continue
		}
		v := &doc.Vulnerabilities[i]
		v.Affects = append(v.Affects, rel.Targets...)
		if rel.VexState != "" {
			v.State = rel.VexState
		}
	}
}

// warnDangling logs relationship targets that reference no element in the
// document. Dangling references are passed through unresolved, not dropped.
func warnDangling(path string, doc *types.Document) {
	ids := make(map[string]struct{}, len(doc.Elements))
	for _, e := range doc.Elements {
		ids[e.ID] = struct{}{}
	}
	for _, rel := range doc.Relationships {
		for _, t := range rel.Targets {
			if _, ok := ids[t]; ok {
				continue
			}
			if strings.HasPrefix(t, "urn:") || rel.Type == types.RelAffects {
				continue // vulnerability references resolve across documents
			}
			log.Debug("Dangling relationship target",
				log.FilePath(path),
				log.String("source", rel.Source),
				log.String("target", t))
		}
	}
}
