// Package stream implements forward-only, constant-memory decoding of SBOM
// documents. The decoders walk the input token by token: the arrays a caller
// cares about are visited item by item through sinks, everything else is
// consumed without buffering. Re-running a decoder with different sinks is
// how the converters implement multi-pass reads.
package stream

import (
	"encoding/json"
	"io"

	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/log"
	"github.com/sbomtools/sbomshift/pkg/progress"
	"github.com/sbomtools/sbomshift/pkg/types"
)

// ElementSink receives each decoded element with its array index.
type ElementSink func(index int, e types.Element) error

// RelationshipSink receives each decoded relationship with its array index.
type RelationshipSink func(index int, r types.Relationship) error

// VulnerabilitySink receives each decoded vulnerability record. Only
// CycloneDX carries a dedicated vulnerability array; SPDX vulnerabilities
// arrive through the ElementSink with KindVulnerability.
type VulnerabilitySink func(index int, v types.Vulnerability) error

// Options selects which sequences a pass reads. A nil sink means the
// corresponding items are skipped at the token level without being decoded.
type Options struct {
	Elements        ElementSink
	Relationships   RelationshipSink
	Vulnerabilities VulnerabilitySink

	// Meta, when set, is called once the walk finishes with whatever
	// document-level metadata was seen.
	Meta func(m Meta)

	// Tracker counts progress; optional.
	Tracker *progress.Tracker

	// OnMalformed is called for records that fail to decode; the walk
	// continues. Defaults to a warning log.
	OnMalformed func(index int, err error)
}

// Meta is document-level metadata collected during a walk.
type Meta struct {
	SpecVersion string
	Serial      string
	Timestamp   string
	Tool        string
	Name        string
}

func (o Options) malformed(index int, err error) {
	if o.OnMalformed != nil {
		o.OnMalformed(index, err)
		return
	}
	log.Warn("Skipping malformed record", log.Int("array_index", index), log.Err(err))
}

func (o Options) countElement() {
	if o.Tracker != nil {
		o.Tracker.Element()
	}
}

func (o Options) countRelationship() {
	if o.Tracker != nil {
		o.Tracker.Relationship()
	}
}

// walkObject consumes one top-level JSON object, dispatching known keys to
// handlers and skipping everything else token by token.
func walkObject(dec *json.Decoder, handlers map[string]func(dec *json.Decoder) error) error {
	eb := oops.Code("parse_error")

	tok, err := dec.Token()
	if err != nil {
		return eb.With("byte_offset", dec.InputOffset()).Wrapf(err, "json read error")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return eb.With("byte_offset", dec.InputOffset()).Errorf("expected a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return eb.With("byte_offset", dec.InputOffset()).Wrapf(err, "json read error")
		}
		key, ok := keyTok.(string)
		if !ok {
			return eb.With("byte_offset", dec.InputOffset()).Errorf("expected an object key")
		}

		if h, ok := handlers[key]; ok {
			if err := h(dec); err != nil {
				return err
			}
			continue
		}
		if err := skipValue(dec); err != nil {
			return eb.With("byte_offset", dec.InputOffset()).Wrapf(err, "json read error")
		}
	}

	_, err = dec.Token() // closing brace
	if err != nil {
		return eb.With("byte_offset", dec.InputOffset()).Wrapf(err, "json read error")
	}
	return nil
}

// forEachRaw iterates a JSON array, yielding each item as a raw message.
// Syntax errors are fatal with the byte offset; they abort the walk but any
// records already emitted to sinks stay emitted.
func forEachRaw(dec *json.Decoder, fn func(index int, raw json.RawMessage) error) error {
	eb := oops.Code("parse_error")

	tok, err := dec.Token()
	if err != nil {
		return eb.With("byte_offset", dec.InputOffset()).Wrapf(err, "json read error")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return eb.With("byte_offset", dec.InputOffset()).Errorf("expected a JSON array")
	}

	for i := 0; dec.More(); i++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return eb.With("byte_offset", dec.InputOffset()).
				With("array_index", i).
				Wrapf(err, "json syntax error")
		}
		if err := fn(i, raw); err != nil {
			return err
		}
	}

	_, err = dec.Token() // closing bracket
	if err != nil {
		return eb.With("byte_offset", dec.InputOffset()).Wrapf(err, "json read error")
	}
	return nil
}

// skipArray consumes an array without decoding its items.
func skipArray(dec *json.Decoder) error {
	return skipValue(dec)
}

// skipValue consumes exactly one JSON value worth of tokens without
// materializing it.
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
		_, err = dec.Token()
		return err
	}
	return nil
}

func newDecoder(r io.Reader) *json.Decoder {
	return json.NewDecoder(r)
}
