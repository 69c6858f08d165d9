package pkg

import (
	"github.com/samber/oops"
	"github.com/urfave/cli"

	"github.com/sbomtools/sbomshift/pkg/document"
	"github.com/sbomtools/sbomshift/pkg/merge"
	"github.com/sbomtools/sbomshift/pkg/types"
)

func mergeAction(c *cli.Context) error {
	inputs := c.StringSlice("input")
	inputs = append(inputs, c.Args()...)
	output := c.String("output")

	if output == "" {
		return oops.Code("validation_error").Errorf("merge requires --output")
	}
	if len(inputs) < 2 {
		return oops.Code("input_count").With("inputs", len(inputs)).
			Errorf("merge requires at least two inputs, got %d", len(inputs))
	}

	strategy, err := merge.ParseStrategy(c.String("dedup"))
	if err != nil {
		return err
	}

	docs := make([]types.Document, 0, len(inputs))
	for _, path := range inputs {
		doc, err := document.Load(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	merged, err := merge.Documents(docs, strategy)
	if err != nil {
		return err
	}
	return document.Save(output, merged)
}
