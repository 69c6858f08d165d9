package detect

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	version "github.com/hashicorp/go-version"
	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/types"
)

// PrefixSize is how much of a document the detector inspects. Markers for
// both formats sit at the top of the object, so a bounded prefix is enough
// even for multi-gigabyte inputs.
const PrefixSize = 64 * 1024

const (
	// DefaultCycloneDXVersion is used when specVersion is absent or unrecognized.
	DefaultCycloneDXVersion = "1.6"
	// DefaultSPDXVersion is used when the SPDX version is ambiguous.
	DefaultSPDXVersion = "3.0.1"
)

var (
	cdxSupported  = version.MustConstraints(version.NewConstraint(">= 1.3, < 1.8"))
	spdxSupported = version.MustConstraints(version.NewConstraint(">= 2.2, < 3.1"))
)

// Result is the outcome of format detection.
type Result struct {
	Format   types.Format
	Encoding types.Encoding
	Version  string
}

// File reads a prefix of the named file and detects its format.
func File(path string) (Result, error) {
	eb := oops.Code("io_error").With("file_path", path)

	f, err := os.Open(path)
	if err != nil {
		return Result{}, eb.Wrapf(err, "file open error")
	}
	defer f.Close()

	prefix := make([]byte, PrefixSize)
	n, err := io.ReadFull(f, prefix)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Result{}, eb.Wrapf(err, "file read error")
	}
	return Prefix(prefix[:n])
}

// Prefix classifies a document from its first readable chunk.
func Prefix(prefix []byte) (Result, error) {
	eb := oops.Code("format_error")

	trimmed := bytes.TrimLeft(prefix, " \t\r\n\uFEFF")
	if len(trimmed) == 0 {
		return Result{}, eb.New("empty input")
	}

	if trimmed[0] == '<' {
		return detectXML(trimmed)
	}

	m := scanMarkers(trimmed)

	switch {
	case m.context || m.graph:
		res := Result{
			Format:   types.FormatSPDX,
			Encoding: types.EncodingJSONLD,
			Version:  DefaultSPDXVersion,
		}
		return checkSupported(res)

	case m.bomFormat == "CycloneDX" || m.specVersion != "":
		v := m.specVersion
		if _, err := version.NewVersion(v); err != nil {
			v = DefaultCycloneDXVersion
		}
		res := Result{
			Format:   types.FormatCycloneDX,
			Encoding: types.EncodingJSON,
			Version:  v,
		}
		return checkSupported(res)

	case m.spdxVersion != "" || m.elements:
		v := strings.TrimPrefix(m.spdxVersion, "SPDX-")
		if _, err := version.NewVersion(v); err != nil {
			v = DefaultSPDXVersion
		}
		res := Result{
			Format:   types.FormatSPDX,
			Encoding: types.EncodingJSON,
			Version:  v,
		}
		return checkSupported(res)
	}

	return Result{}, eb.New("no recognizable SBOM marker found")
}

func detectXML(prefix []byte) (Result, error) {
	eb := oops.Code("format_error")

	head := string(prefix)
	if !strings.Contains(head, "<bom") {
		return Result{}, eb.New("unsupported XML document: only CycloneDX <bom> is accepted")
	}

	v := DefaultCycloneDXVersion
	if i := strings.Index(head, "cyclonedx.org/schema/bom/"); i >= 0 {
		rest := head[i+len("cyclonedx.org/schema/bom/"):]
		if j := strings.IndexAny(rest, `"' >`); j > 0 {
			v = rest[:j]
		}
	}
	return checkSupported(Result{
		Format:   types.FormatCycloneDX,
		Encoding: types.EncodingXML,
		Version:  v,
	})
}

func checkSupported(res Result) (Result, error) {
	v, err := version.NewVersion(res.Version)
	if err != nil {
		return Result{}, oops.Code("format_error").
			With("version", res.Version).
			Wrapf(err, "unparsable %s version", res.Format)
	}

	supported := spdxSupported
	if res.Format == types.FormatCycloneDX {
		supported = cdxSupported
	}
	if !supported.Check(v) {
		return Result{}, oops.Code("format_error").
			With("version", res.Version).
			Errorf("unsupported %s version %s", res.Format, res.Version)
	}
	return res, nil
}

type markers struct {
	bomFormat   string
	specVersion string
	spdxVersion string
	context     bool
	graph       bool
	elements    bool
}

// scanMarkers walks top-level keys of a possibly truncated JSON object.
// Scalar marker values are captured; nested values are skipped token by
// token. A truncated prefix simply ends the scan early.
func scanMarkers(prefix []byte) markers {
	var m markers
	dec := json.NewDecoder(bytes.NewReader(prefix))

	tok, err := dec.Token()
	if err != nil {
		return m
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return m
	}

	for {
		keyTok, err := dec.Token()
		if err != nil {
			return m
		}
		key, ok := keyTok.(string)
		if !ok {
			return m
		}

		switch key {
		case "@context":
			m.context = true
			if skipValue(dec) != nil {
				return m
			}
		case "@graph":
			m.graph = true
			if skipValue(dec) != nil {
				return m
			}
		case "elements":
			m.elements = true
			if skipValue(dec) != nil {
				return m
			}
		case "bomFormat", "specVersion", "spdxVersion":
			valTok, err := dec.Token()
			if err != nil {
				return m
			}
			s, _ := valTok.(string)
			switch key {
			case "bomFormat":
				m.bomFormat = s
			case "specVersion":
				m.specVersion = s
			case "spdxVersion":
				m.spdxVersion = s
			}
		default:
			if skipValue(dec) != nil {
				return m
			}
		}
	}
}

// skipValue consumes exactly one JSON value worth of tokens.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	if d == '{' || d == '[' {
		for dec.More() {
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		_, err = dec.Token() // closing delim
		return err
	}
	return nil
}
