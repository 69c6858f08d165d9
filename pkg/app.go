package pkg

import (
	"github.com/urfave/cli"

	"github.com/sbomtools/sbomshift/pkg/log"
)

// NewApp builds the sbomshift command line application.
func NewApp(version string) *cli.App {
	app := cli.NewApp()
	app.Name = "sbomshift"
	app.Version = version

	app.Usage = "SBOM converter between SPDX and CycloneDX"

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging",
		},
	}
	app.Before = func(c *cli.Context) error {
		log.SetVerbose(c.GlobalBool("verbose"))
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:   "convert",
			Usage:  "convert an SBOM between SPDX and CycloneDX",
			Action: convertAction,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "input, i",
					Usage: "input SBOM file",
				},
				cli.StringFlag{
					Name:  "output, o",
					Usage: "output SBOM file",
				},
				cli.StringFlag{
					Name:  "direction",
					Usage: "spdx-to-cdx or cdx-to-spdx (default: inferred from input)",
				},
				cli.StringFlag{
					Name:  "output-version",
					Usage: "CycloneDX specVersion to emit",
					Value: "1.6",
				},
				cli.BoolFlag{
					Name:  "packages-only",
					Usage: "drop file elements, keep package-like components",
				},
				cli.BoolFlag{
					Name:  "split-vex",
					Usage: "write vulnerabilities to a sibling .vex.json document",
				},
				cli.BoolFlag{
					Name:  "validate",
					Usage: "validate the output after conversion",
				},
				cli.BoolFlag{
					Name:  "skip-jsonld-validation",
					Usage: "skip structural checks on JSON-LD documents",
				},
			},
		},
		{
			Name:      "validate",
			Usage:     "validate an SBOM against its format schema",
			ArgsUsage: "[file]",
			Action:    validateAction,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "input, i",
					Usage: "input SBOM file",
				},
				cli.StringFlag{
					Name:  "report-format",
					Usage: "text or json",
					Value: "text",
				},
				cli.BoolFlag{
					Name:  "fail-on-errors",
					Usage: "exit nonzero when validation issues are found",
				},
				cli.BoolFlag{
					Name:  "skip-jsonld-validation",
					Usage: "skip structural checks on JSON-LD documents",
				},
			},
		},
		{
			Name:      "diff",
			Usage:     "compare two same-format SBOMs",
			ArgsUsage: "file1 file2",
			Action:    diffAction,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "output, o",
					Usage: "write the report to a file instead of stdout",
				},
				cli.StringFlag{
					Name:  "report-format",
					Usage: "text or json",
					Value: "text",
				},
				cli.BoolFlag{
					Name:  "diff-only",
					Usage: "omit unchanged elements from the report",
				},
			},
		},
		{
			Name:   "merge",
			Usage:  "merge two or more same-format SBOMs",
			Action: mergeAction,
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "input, i",
					Usage: "input SBOM file (repeatable)",
				},
				cli.StringFlag{
					Name:  "output, o",
					Usage: "output SBOM file",
				},
				cli.StringFlag{
					Name:  "dedup",
					Usage: "duplicate strategy: first or latest",
					Value: "first",
				},
			},
		},
	}

	return app
}
