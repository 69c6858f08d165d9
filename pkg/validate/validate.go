// Package validate checks a document against an embedded JSON Schema for
// its detected format and version. JSON-LD documents get structural checks
// instead of a schema, since the @graph form is too open for meaningful
// schema validation.
package validate

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sbomtools/sbomshift/pkg/detect"
	"github.com/sbomtools/sbomshift/pkg/log"
	"github.com/sbomtools/sbomshift/pkg/types"
	"github.com/sbomtools/sbomshift/pkg/xmlcodec"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Issue is one validation finding with its instance location.
type Issue struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// Result reports the detected format and any issues found.
type Result struct {
	Format      types.Format `json:"format"`
	SpecVersion string       `json:"spec_version"`
	Issues      []Issue      `json:"issues"`
}

// Valid reports whether no issues were found.
func (r *Result) Valid() bool {
	return len(r.Issues) == 0
}

// Options tunes a validation run.
type Options struct {
	// SkipGraphChecks disables the structural checks applied to SPDX
	// JSON-LD documents.
	SkipGraphChecks bool
}

// File validates the named file. Schema violations come back as issues;
// unreadable or undetectable input is an error.
func File(path string, opts Options) (*Result, error) {
	eb := oops.With("file_path", path)
	logger := log.WithPrefix("validate")

	res, err := detect.File(path)
	if err != nil {
		return nil, eb.Wrapf(err, "format detection failed")
	}
	out := &Result{Format: res.Format, SpecVersion: res.Version}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eb.Code("io_error").Wrapf(err, "file read error")
	}

	if res.Encoding == types.EncodingXML {
		if _, err := xmlcodec.Decode(bytes.NewReader(raw)); err != nil {
			out.Issues = append(out.Issues, Issue{Location: "/", Message: err.Error()})
		}
		return out, nil
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, eb.Code("parse_error").Wrapf(err, "json parse error")
	}

	if res.Encoding == types.EncodingJSONLD {
		if !opts.SkipGraphChecks {
			out.Issues = append(out.Issues, graphChecks(instance)...)
		}
		return out, nil
	}

	sch, err := compile(res.Format, res.Version)
	if err != nil {
		return nil, eb.Wrap(err)
	}

	logger.Debug("Validating against schema",
		log.String("format", string(res.Format)),
		log.String("version", res.Version))

	if err := sch.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			out.Issues = append(out.Issues, flatten(ve)...)
		} else {
			out.Issues = append(out.Issues, Issue{Location: "/", Message: err.Error()})
		}
	}
	return out, nil
}

func compile(format types.Format, version string) (*jsonschema.Schema, error) {
	var name string
	switch format {
	case types.FormatCycloneDX:
		name = "cyclonedx-" + version + ".json"
	case types.FormatSPDX:
		// 3.0.x point releases share the 3.0 schema.
		v := version
		if strings.HasPrefix(v, "3.0") {
			v = "3.0"
		}
		name = "spdx-" + v + ".json"
	default:
		return nil, oops.Code("format_error").Errorf("unknown format %q", format)
	}

	f, err := schemaFS.Open("schemas/" + name)
	if err != nil {
		return nil, oops.Code("validation_error").
			With("schema", name).
			Wrapf(err, "no embedded schema for %s %s", format, version)
	}
	defer f.Close()

	doc, err := jsonschema.UnmarshalJSON(f)
	if err != nil {
		return nil, oops.Wrapf(err, "schema parse error")
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, oops.Wrapf(err, "schema resource error")
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, oops.Wrapf(err, "schema compile error")
	}
	return sch, nil
}

// flatten walks the cause tree and keeps the leaves, which carry the
// concrete findings.
func flatten(ve *jsonschema.ValidationError) []Issue {
	if len(ve.Causes) == 0 {
		return []Issue{{
			Location: pointer(ve.InstanceLocation),
			Message:  ve.Error(),
		}}
	}
	var issues []Issue
	for _, cause := range ve.Causes {
		issues = append(issues, flatten(cause)...)
	}
	return issues
}

func pointer(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}

// graphChecks applies the structural rules for SPDX JSON-LD: a @context,
// a @graph array, and a spdxId plus @type on every graph node.
func graphChecks(instance any) []Issue {
	root, ok := instance.(map[string]any)
	if !ok {
		return []Issue{{Location: "/", Message: "document is not a JSON object"}}
	}

	var issues []Issue
	if _, ok := root["@context"]; !ok {
		issues = append(issues, Issue{Location: "/", Message: "missing @context"})
	}
	graph, ok := root["@graph"].([]any)
	if !ok {
		issues = append(issues, Issue{Location: "/@graph", Message: "missing or non-array @graph"})
		return issues
	}

	for i, item := range graph {
		node, ok := item.(map[string]any)
		loc := fmt.Sprintf("/@graph/%d", i)
		if !ok {
			issues = append(issues, Issue{Location: loc, Message: "graph entry is not an object"})
			continue
		}
		if !hasString(node, "spdxId") && !hasString(node, "@id") {
			issues = append(issues, Issue{Location: loc, Message: "missing spdxId"})
		}
		if !hasString(node, "type") && !hasString(node, "@type") {
			issues = append(issues, Issue{Location: loc, Message: "missing type"})
		}
	}
	return issues
}

func hasString(node map[string]any, key string) bool {
	s, ok := node[key].(string)
	return ok && s != ""
}
