package pkg

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"github.com/urfave/cli"

	"github.com/sbomtools/sbomshift/pkg/convert/cdx2spdx"
	"github.com/sbomtools/sbomshift/pkg/convert/spdx2cdx"
	"github.com/sbomtools/sbomshift/pkg/detect"
	"github.com/sbomtools/sbomshift/pkg/log"
	"github.com/sbomtools/sbomshift/pkg/progress"
	"github.com/sbomtools/sbomshift/pkg/types"
	"github.com/sbomtools/sbomshift/pkg/utils"
	"github.com/sbomtools/sbomshift/pkg/validate"
)

const progressInterval = 1000

func convertAction(c *cli.Context) error {
	input := c.String("input")
	output := c.String("output")
	if input == "" || output == "" {
		return oops.Code("validation_error").Errorf("convert requires --input and --output")
	}
	if ok, err := utils.Exists(input); err != nil {
		return oops.Code("io_error").With("file_path", input).Wrap(err)
	} else if !ok {
		return oops.Code("io_error").With("file_path", input).Errorf("input file does not exist")
	}

	res, err := detect.File(input)
	if err != nil {
		return err
	}
	log.Info("Detected input format",
		log.FilePath(input),
		log.String("format", string(res.Format)),
		log.String("version", res.Version))

	direction := c.String("direction")
	if direction == "" {
		switch res.Format {
		case types.FormatSPDX:
			direction = "spdx-to-cdx"
		default:
			direction = "cdx-to-spdx"
		}
	}

	tracker := progress.New(progressInterval)

	switch direction {
	case "spdx-to-cdx":
		if res.Format != types.FormatSPDX {
			return oops.Code("format_mismatch").With("file_path", input).
				Errorf("input is %s, expected SPDX for spdx-to-cdx", res.Format)
		}
		err = runSPDXToCDX(c, input, output, tracker)
	case "cdx-to-spdx":
		if res.Format != types.FormatCycloneDX {
			return oops.Code("format_mismatch").With("file_path", input).
				Errorf("input is %s, expected CycloneDX for cdx-to-spdx", res.Format)
		}
		err = runCDXToSPDX(c, input, output, tracker)
	default:
		return oops.Code("validation_error").
			Errorf("unknown direction %q, want spdx-to-cdx or cdx-to-spdx", direction)
	}
	if err != nil {
		return err
	}
	tracker.Finish()

	if c.Bool("validate") {
		return validateOutput(output, c.Bool("skip-jsonld-validation"))
	}
	return nil
}

func runSPDXToCDX(c *cli.Context, input, output string, tracker *progress.Tracker) error {
	out, err := os.Create(output)
	if err != nil {
		return oops.Code("io_error").With("file_path", output).Wrapf(err, "file create error")
	}
	defer out.Close()

	cfg := spdx2cdx.Config{
		OutputVersion: c.String("output-version"),
		PackagesOnly:  c.Bool("packages-only"),
		Tracker:       tracker,
	}

	if c.Bool("split-vex") {
		path := vexPath(output)
		vexOut, err := os.Create(path)
		if err != nil {
			return oops.Code("io_error").With("file_path", path).Wrapf(err, "file create error")
		}
		defer vexOut.Close()
		cfg.SplitVEX = true
		cfg.VEXWriter = vexOut
		log.Info("Writing split VEX document", log.FilePath(path))
	}

	return spdx2cdx.New(cfg).Run(spdx2cdx.FileSource(input), out)
}

func runCDXToSPDX(c *cli.Context, input, output string, tracker *progress.Tracker) error {
	in, err := os.Open(input)
	if err != nil {
		return oops.Code("io_error").With("file_path", input).Wrapf(err, "file open error")
	}
	defer in.Close()

	out, err := os.Create(output)
	if err != nil {
		return oops.Code("io_error").With("file_path", output).Wrapf(err, "file create error")
	}
	defer out.Close()

	return cdx2spdx.New(cdx2spdx.Config{Tracker: tracker}).Run(in, out)
}

func validateOutput(output string, skipGraphChecks bool) error {
	res, err := validate.File(output, validate.Options{SkipGraphChecks: skipGraphChecks})
	if err != nil {
		return err
	}
	for _, issue := range res.Issues {
		log.Warn("Validation issue",
			log.FilePath(output),
			log.String("location", issue.Location),
			log.String("message", issue.Message))
	}
	if res.Valid() {
		log.Info("Output is valid", log.FilePath(output), log.String("format", string(res.Format)))
	}
	return nil
}

// vexPath derives the sibling VEX file name: out.cdx.json -> out.cdx.vex.json.
func vexPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".vex" + ext
}
