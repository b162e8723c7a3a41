package cmd

import (
	"github.com/urfave/cli"

	"github.com/xsongx/scanner/log"
)

var logger = log.New("scanner")

func setupLogging(ctx *cli.Context) {
	if name := ctx.GlobalString("log-level"); name != "" {
		level, err := log.ParseLevel(name)
		if err != nil {
			logger.Warningf("ignoring --log-level: %v", err)
		} else {
			log.SetLevel(level)
		}
	}

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
