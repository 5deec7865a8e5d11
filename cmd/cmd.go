package cmd

import (
	"log"
	"os"

	App "pkgbind/app"
	_ "pkgbind/pkg"

	"github.com/urfave/cli"
)

func Execute(name, usage, version, commit string) {
	app := cli.NewApp()
	app.Name = name
	app.Usage = usage
	app.Version = version
	if commit != "" {
		app.Version += " (" + commit + ")"
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "config, c",
			Value: "/etc/pkgbind/config.yaml",
			Usage: "Configuration file path",
		},
		&cli.StringFlag{
			Name:  "root, r",
			Usage: "Target root directory, overrides the configuration",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug mode",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the builtins over HTTP",
			Action: App.Run,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "listen, l",
					Usage: "Listen address, overrides the configuration",
				},
				&cli.StringFlag{
					Name:  "autorefresh",
					Usage: "Cron schedule for repository autorefresh",
				},
			},
		},
		{
			Name:      "call",
			Usage:     "Run one builtin and print its result as JSON",
			ArgsUsage: "NAME [JSON-ARGS...]",
			Action:    App.Call,
		},
		{
			Name:   "builtins",
			Usage:  "List the builtins and their parameter kinds",
			Action: App.Builtins,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
