package pkg

import (
	"io"
	"os"

	"github.com/samber/oops"
	"github.com/urfave/cli"

	"github.com/sbomtools/sbomshift/pkg/diff"
	"github.com/sbomtools/sbomshift/pkg/document"
	"github.com/sbomtools/sbomshift/pkg/log"
)

func diffAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return oops.Code("input_count").With("args", c.NArg()).
			Errorf("diff requires exactly two input files")
	}

	left, err := document.Load(c.Args().Get(0))
	if err != nil {
		return err
	}
	right, err := document.Load(c.Args().Get(1))
	if err != nil {
		return err
	}

	report, err := diff.Documents(left, right)
	if err != nil {
		return err
	}

	logger := log.WithPrefix("diff")
	if report.HasChanges() {
		logger.Info("Documents differ",
			log.Int("added", len(report.Added)),
			log.Int("removed", len(report.Removed)),
			log.Int("modified", len(report.Modified)))
	} else {
		logger.Info("No differences found")
	}

	var out io.Writer = os.Stdout
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return oops.Code("io_error").With("file_path", path).Wrapf(err, "file create error")
		}
		defer f.Close()
		out = f
	}

	if c.String("report-format") == "json" {
		return report.WriteJSON(out)
	}
	return report.WriteText(out, c.Bool("diff-only"))
}
