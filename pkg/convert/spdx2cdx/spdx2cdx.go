// Package spdx2cdx converts SPDX documents to CycloneDX using the
// multi-pass index method: pass 1 streams only the relationship sequence
// and builds the relationship index, pass 2 re-streams elements and writes
// components with their dependency lists, pass 3 re-streams elements once
// more and writes vulnerability records. Each pass is a fresh forward-only
// read of the input, so memory stays bounded by the relationship count
// regardless of file size.
package spdx2cdx

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/index"
	"github.com/sbomtools/sbomshift/pkg/log"
	"github.com/sbomtools/sbomshift/pkg/mapper"
	"github.com/sbomtools/sbomshift/pkg/progress"
	"github.com/sbomtools/sbomshift/pkg/stream"
	"github.com/sbomtools/sbomshift/pkg/types"
)

// Source opens a fresh forward-only reader over the input. It is invoked
// once per pass.
type Source func() (io.ReadCloser, error)

// Config controls one conversion run.
type Config struct {
	// OutputVersion is the CycloneDX specVersion to emit; defaults to 1.6.
	OutputVersion string

	// PackagesOnly drops file-classified elements from the output. The
	// relationship index is always built first, so dependency edges through
	// filtered files are preserved.
	PackagesOnly bool

	// SplitVEX writes vulnerabilities to VEXWriter as a standalone VEX
	// document instead of embedding them.
	SplitVEX  bool
	VEXWriter io.Writer

	Tracker *progress.Tracker

	// Now and Serial are injectable for deterministic output in tests.
	Now    func() time.Time
	Serial func() string
}

type convState int

const (
	stateInit convState = iota
	stateIndexBuilt
	stateComponentsStreamed
	stateVulnsStreamed
	stateDone
)

// Converter runs one SPDX to CycloneDX conversion.
type Converter struct {
	cfg    Config
	state  convState
	ix     *index.Index
	serial string
	logger *log.Logger
}

// New returns a converter for one invocation.
func New(cfg Config) *Converter {
	if cfg.OutputVersion == "" {
		cfg.OutputVersion = "1.6"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Serial == nil {
		cfg.Serial = func() string { return "urn:uuid:" + uuid.NewString() }
	}
	return &Converter{
		cfg:    cfg,
		ix:     index.New(),
		logger: log.WithPrefix("spdx-to-cdx"),
	}
}

func (c *Converter) advance(from, to convState) error {
	if c.state != from {
		return oops.Errorf("conversion pass out of order: state %d, expected %d", c.state, from)
	}
	c.state = to
	return nil
}

// Run executes the three passes and writes a complete CycloneDX document.
func (c *Converter) Run(source Source, out io.Writer) error {
	w := bufio.NewWriter(out)

	if err := c.buildIndex(source); err != nil {
		return err
	}
	if err := c.writeComponents(source, w); err != nil {
		return err
	}
	if err := c.writeVulnerabilities(source, w); err != nil {
		return err
	}
	if err := c.advance(stateVulnsStreamed, stateDone); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return oops.Code("io_error").Wrapf(err, "output flush error")
	}
	return nil
}

// buildIndex is pass 1: relationships only, element bodies skipped.
func (c *Converter) buildIndex(source Source) error {
	r, err := source()
	if err != nil {
		return err
	}
	defer r.Close()

	err = stream.DecodeSPDX(r, stream.Options{
		Relationships: func(_ int, rel types.Relationship) error {
			c.ix.Add(rel)
			return nil
		},
		Tracker: c.cfg.Tracker,
	})
	if err != nil {
		return err
	}

	c.logger.Info("Relationship index built",
		log.Int("sources", c.ix.Sources()),
		log.Int("edges", c.ix.Len()))
	return c.advance(stateInit, stateIndexBuilt)
}

// writeComponents is pass 2: re-stream elements, emit the document header,
// the component array in source order and the dependency array from the
// index.
func (c *Converter) writeComponents(source Source, w *bufio.Writer) error {
	if err := c.advance(stateIndexBuilt, stateComponentsStreamed); err != nil {
		return err
	}

	r, err := source()
	if err != nil {
		return err
	}
	defer r.Close()

	c.serial = c.cfg.Serial()
	if err := c.writeHeader(w, c.serial); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %q: [", "components")
	first := true
	filtered := 0

	err = stream.DecodeSPDX(r, stream.Options{
		Elements: func(_ int, e types.Element) error {
			if e.Kind == types.KindVulnerability {
				return nil // pass 3 picks these up
			}
			// Filtering happens after index construction, never before:
			// dependency edges through files stay in the index.
			if c.cfg.PackagesOnly && !e.Kind.IsPackageLike() {
				filtered++
				return nil
			}
			return writeItem(w, &first, mapper.ToCDXComponent(e))
		},
		Tracker: c.cfg.Tracker,
	})
	if err != nil {
		return err
	}
	fmt.Fprint(w, "\n  ],\n")

	if filtered > 0 {
		c.logger.Info("Filtered non-package elements", log.Int("count", filtered))
	}

	return c.writeDependencies(w)
}

func (c *Converter) writeDependencies(w *bufio.Writer) error {
	fmt.Fprintf(w, "  %q: [", "dependencies")
	first := true
	for _, src := range c.ix.SourceOrder() {
		targets := c.ix.DependsOn(src)
		if len(targets) == 0 {
			continue
		}
		refs := make([]string, 0, len(targets))
		for _, t := range targets {
			refs = append(refs, mapper.BOMRef(t))
		}
		dep := struct {
			Ref       string   `json:"ref"`
			DependsOn []string `json:"dependsOn"`
		}{Ref: mapper.BOMRef(src), DependsOn: refs}

		if err := writeItem(w, &first, dep); err != nil {
			return err
		}
	}
	fmt.Fprint(w, "\n  ]")
	return nil
}

// writeVulnerabilities is pass 3: re-stream elements selecting only
// vulnerability-typed ones. AFFECTS targets come from the secondary index
// and are rewritten as URN references against the emitted document serial.
func (c *Converter) writeVulnerabilities(source Source, w *bufio.Writer) error {
	if err := c.advance(stateComponentsStreamed, stateVulnsStreamed); err != nil {
		return err
	}

	r, err := source()
	if err != nil {
		return err
	}
	defer r.Close()

	vw := w
	if c.cfg.SplitVEX {
		// Close the main document without vulnerabilities and start the
		// standalone VEX document.
		fmt.Fprint(w, "\n}\n")
		if err := w.Flush(); err != nil {
			return oops.Code("io_error").Wrapf(err, "output flush error")
		}
		if c.cfg.VEXWriter == nil {
			return oops.Errorf("split-vex requested without a VEX writer")
		}
		vw = bufio.NewWriter(c.cfg.VEXWriter)
		if err := c.writeHeader(vw, c.serial); err != nil {
			return err
		}
	} else {
		fmt.Fprint(w, ",\n")
	}

	fmt.Fprintf(vw, "  %q: [", "vulnerabilities")
	first := true

	err = stream.DecodeSPDX(r, stream.Options{
		Elements: func(_ int, e types.Element) error {
			if e.Kind != types.KindVulnerability {
				return nil
			}
			return writeItem(vw, &first, c.vulnerabilityRecord(e))
		},
		Tracker: c.cfg.Tracker,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(vw, "\n  ]\n}\n")
	if c.cfg.SplitVEX {
		if err := vw.Flush(); err != nil {
			return oops.Code("io_error").Wrapf(err, "vex flush error")
		}
	}
	return nil
}

type vulnRecord struct {
	ID       string        `json:"id"`
	Source   *vulnSource   `json:"source,omitempty"`
	Analysis *vulnAnalysis `json:"analysis,omitempty"`
	Affects  []vulnAffects `json:"affects,omitempty"`
}

type vulnSource struct {
	Name string `json:"name"`
}

type vulnAnalysis struct {
	State string `json:"state"`
}

type vulnAffects struct {
	Ref string `json:"ref"`
}

func (c *Converter) vulnerabilityRecord(e types.Element) vulnRecord {
	rec := vulnRecord{ID: e.Name}
	if rec.ID == "" {
		rec.ID = mapper.BOMRef(e.ID)
	}
	if e.Description != "" {
		rec.Source = &vulnSource{Name: e.Description}
	}

	state := "in_triage"
	if a := c.ix.Affects(e.ID); a != nil {
		if a.State != "" {
			state = a.State
		}
		for _, t := range a.Targets {
			rec.Affects = append(rec.Affects, vulnAffects{
				Ref: types.AffectsURN(c.serial, mapper.BOMRef(t)),
			})
		}
	}
	rec.Analysis = &vulnAnalysis{State: state}
	return rec
}

func (c *Converter) writeHeader(w *bufio.Writer, serial string) error {
	fmt.Fprint(w, "{\n")
	fmt.Fprintf(w, "  %q: %q,\n", "bomFormat", "CycloneDX")
	fmt.Fprintf(w, "  %q: %q,\n", "specVersion", c.cfg.OutputVersion)
	fmt.Fprintf(w, "  %q: %q,\n", "serialNumber", serial)
	fmt.Fprintf(w, "  %q: 1,\n", "version")

	md := struct {
		Timestamp string `json:"timestamp"`
		Tools     []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}{
		Timestamp: c.cfg.Now().UTC().Format(time.RFC3339),
		Tools: []struct {
			Name string `json:"name"`
		}{{Name: "sbomshift"}},
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return oops.Wrapf(err, "metadata marshal error")
	}
	fmt.Fprintf(w, "  %q: %s,\n", "metadata", raw)
	return nil
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

// FileSource returns a Source that re-opens the named file per pass.
func FileSource(path string) Source {
	return func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, oops.Code("io_error").With("file_path", path).Wrapf(err, "file open error")
		}
		return f, nil
	}
}
