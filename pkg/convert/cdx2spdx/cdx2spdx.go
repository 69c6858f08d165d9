// Package cdx2spdx converts CycloneDX documents to SPDX in a single
// forward pass. Components are mapped and written the moment they are
// read; every dependency or AFFECTS edge goes to an append-only scratch
// spool instead of the main output. Once the stream is exhausted the spool
// is replayed into the trailing relationships array and discarded, so the
// output is one coherent document whose relationships follow its elements
// while peak memory stays constant in the element count.
package cdx2spdx

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/log"
	"github.com/sbomtools/sbomshift/pkg/mapper"
	"github.com/sbomtools/sbomshift/pkg/progress"
	"github.com/sbomtools/sbomshift/pkg/spool"
	"github.com/sbomtools/sbomshift/pkg/stream"
	"github.com/sbomtools/sbomshift/pkg/types"
)

// Config controls one conversion run.
type Config struct {
	// SpoolDir is where the scratch spool lives; defaults to the system
	// temp directory.
	SpoolDir string

	Tracker *progress.Tracker

	// Now and Namespace are injectable for deterministic output in tests.
	Now       func() time.Time
	Namespace func() string
}

// Converter runs one CycloneDX to SPDX conversion.
type Converter struct {
	cfg    Config
	logger *log.Logger
}

// New returns a converter for one invocation.
func New(cfg Config) *Converter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Namespace == nil {
		cfg.Namespace = func() string { return "urn:uuid:" + uuid.NewString() }
	}
	return &Converter{cfg: cfg, logger: log.WithPrefix("cdx-to-spdx")}
}

// Run streams the input once and writes a complete SPDX document. The
// scratch spool is deleted on every exit path.
func (c *Converter) Run(r io.Reader, out io.Writer) (err error) {
	sp, err := spool.New(c.cfg.SpoolDir)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	w := bufio.NewWriter(out)
	if err := c.writeHeader(w); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %q: [", "elements")
	first := true

	err = stream.DecodeCycloneDX(r, stream.Options{
		Elements: func(_ int, e types.Element) error {
			return writeItem(w, &first, mapper.ToSPDXElement(e))
		},
		Relationships: func(_ int, rel types.Relationship) error {
			return sp.Append(rel)
		},
		Vulnerabilities: func(_ int, v types.Vulnerability) error {
			if err := writeItem(w, &first, vulnerabilityElement(v)); err != nil {
				return err
			}
			if len(v.Affects) == 0 {
				return nil
			}
			return sp.Append(types.Relationship{
				Source:   "SPDXRef-Vulnerability-" + v.ID,
				Type:     types.RelAffects,
				Targets:  v.Affects,
				VexState: v.State,
			})
		},
		Tracker: c.cfg.Tracker,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(w, "\n  ],\n")
	c.logger.Debug("Replaying relationship spool", log.Int("records", sp.Len()))

	if err := c.writeRelationships(w, sp); err != nil {
		return err
	}

	fmt.Fprint(w, "\n}\n")
	if err := w.Flush(); err != nil {
		return oops.Code("io_error").Wrapf(err, "output flush error")
	}
	return nil
}

func (c *Converter) writeRelationships(w *bufio.Writer, sp *spool.Spool) error {
	fmt.Fprintf(w, "  %q: [", "relationships")
	first := true

	err := sp.Replay(func(rel types.Relationship) error {
		for _, target := range rel.Targets {
			rec := mapper.SPDXRelationship{
				SpdxElementID:      mapper.SPDXRef(rel.Source),
				RelationshipType:   rel.Type,
				RelatedSpdxElement: mapper.SPDXRef(target),
			}
			if err := writeItem(w, &first, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprint(w, "\n  ]")
	return nil
}

func (c *Converter) writeHeader(w *bufio.Writer) error {
	fmt.Fprint(w, "{\n")
	fmt.Fprintf(w, "  %q: %q,\n", "spdxVersion", "SPDX-3.0")
	fmt.Fprintf(w, "  %q: %q,\n", "dataLicense", "CC0-1.0")
	fmt.Fprintf(w, "  %q: %q,\n", "spdxId", "SPDXRef-DOCUMENT")
	fmt.Fprintf(w, "  %q: %q,\n", "name", "Converted SBOM")
	fmt.Fprintf(w, "  %q: %q,\n", "documentNamespace", c.cfg.Namespace())

	ci := struct {
		Created  string   `json:"created"`
		Creators []string `json:"creators"`
	}{
		Created:  c.cfg.Now().UTC().Format(time.RFC3339),
		Creators: []string{"Tool: sbomshift"},
	}
	raw, err := json.Marshal(ci)
	if err != nil {
		return oops.Wrapf(err, "creation info marshal error")
	}
	fmt.Fprintf(w, "  %q: %s,\n", "creationInfo", raw)
	return nil
}

func vulnerabilityElement(v types.Vulnerability) mapper.SPDXElement {
	return mapper.SPDXElement{
		SpdxID: "SPDXRef-Vulnerability-" + v.ID,
		Type:   "SpdxVulnerability",
		Name:   v.ID,
	}
}

// writeItem writes one array entry with the leading comma bookkeeping.
func writeItem(w *bufio.Writer, first *bool, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return oops.Wrapf(err, "marshal error")
	}
	if !*first {
		fmt.Fprint(w, ",")
	}
	*first = false
	fmt.Fprint(w, "\n    ")
	if _, err := w.Write(raw); err != nil {
		return oops.Code("io_error").Wrapf(err, "write error")
	}
	return nil
}
