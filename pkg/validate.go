package pkg

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/samber/oops"
	"github.com/urfave/cli"

	"github.com/sbomtools/sbomshift/pkg/validate"
)

func validateAction(c *cli.Context) error {
	input := c.String("input")
	if input == "" {
		input = c.Args().First()
	}
	if input == "" {
		return oops.Code("validation_error").Errorf("validate requires an input file")
	}

	res, err := validate.File(input, validate.Options{
		SkipGraphChecks: c.Bool("skip-jsonld-validation"),
	})
	if err != nil {
		return err
	}

	switch c.String("report-format") {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return oops.Code("io_error").Wrapf(err, "report encode error")
		}
	default:
		printValidation(input, res)
	}

	if !res.Valid() && c.Bool("fail-on-errors") {
		return oops.Code("validation_error").With("file_path", input).
			Errorf("%d validation issue(s) found", len(res.Issues))
	}
	return nil
}

func printValidation(input string, res *validate.Result) {
	fmt.Printf("%s: %s %s\n", input, res.Format, res.SpecVersion)
	if res.Valid() {
		color.Green("valid")
		return
	}
	for _, issue := range res.Issues {
		color.Red("%s: %s", issue.Location, issue.Message)
	}
}
