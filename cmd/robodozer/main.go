package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `long:"config" short:"c" default:"robodozer.json" description:"Configuration file"`

	Setup SetupCommand `command:"setup" description:"Find the brick and shovel servo and write the configuration"`
	Run   RunCommand   `command:"run" description:"Start the dozer (driving and auto mode)"`
	Info  InfoCommand  `command:"info" description:"Show the configuration and a sensor snapshot"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "RoboDozer - remote controlled and autonomous tracked dozer"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
