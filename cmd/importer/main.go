// Command importer loads questionnaire definitions from YAML files.
package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Import failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	fileFlag := &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "path of the YAML definition",
		Required: true,
	}

	return &cli.App{
		Name:  "importer",
		Usage: "load questionnaire definitions into the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "check a definition without touching the database",
				Flags: []cli.Flag{fileFlag},
				Action: func(c *cli.Context) error {
					setupLogger(c)
					def, err := readDefinition(c.String("file"))
					if err != nil {
						return err
					}
					slog.Info("Definition is valid",
						"code", def.Code,
						"sections", len(def.Sections),
						"questions", def.QuestionCount(),
					)
					return nil
				},
			},
			{
				Name:  "load",
				Usage: "create a new draft version from a definition",
				Flags: []cli.Flag{
					fileFlag,
					&cli.BoolFlag{Name: "publish", Usage: "publish the version after loading"},
					&cli.BoolFlag{Name: "primary", Usage: "make the questionnaire primary"},
				},
				Action: load,
			},
		},
	}
}
