package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/go-errors/errors"
	"github.com/goccy/go-yaml"
	"github.com/integrii/flaggy"
	"github.com/samber/lo"

	"github.com/fluoresce/fluoresce/pkg/app"
	"github.com/fluoresce/fluoresce/pkg/config"
	"github.com/fluoresce/fluoresce/pkg/utils"
)

const DEFAULT_VERSION = "unversioned"

var (
	commit  string
	version = DEFAULT_VERSION
	date    string

	configFlag    = false
	debuggingFlag = false
	sourcePath    string
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s",
		version,
		date,
		commit,
		runtime.GOOS,
		runtime.GOARCH,
	)

	flaggy.SetName("fluoresce")
	flaggy.SetDescription("A GDB/MI driver that compiles a C source file, breakpoints every function it finds, and traverses reachable memory after every step")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/fluoresce/fluoresce"

	flaggy.Bool(&configFlag, "c", "config", "Print the current default config")
	flaggy.Bool(&debuggingFlag, "d", "debug", "a boolean")
	flaggy.AddPositionalValue(&sourcePath, "source", 1, false, "Path to the C source file to compile and debug")
	flaggy.SetVersion(info)

	flaggy.Parse()

	if configFlag {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		err := encoder.Encode(config.GetDefaultConfig())
		if err != nil {
			log.Fatal(err.Error())
		}
		fmt.Printf("%v\n", buf.String())
		os.Exit(0)
	}

	if sourcePath == "" {
		log.Fatal("a source file is required: fluoresce <source.c>")
	}

	appConfig, err := config.NewAppConfig("fluoresce", version, commit, date, debuggingFlag, sourcePath)
	if err != nil {
		log.Fatal(err.Error())
	}

	driver, err := app.NewApp(appConfig)
	if err == nil {
		err = driver.Run()
	}
	if driver != nil {
		driver.Close()
	}

	if err != nil {
		newErr := errors.Wrap(err, 0)
		stackTrace := newErr.ErrorStack()
		if driver != nil {
			driver.Log.Error(stackTrace)
		}
		log.Fatalf("a fatal error occurred\n\n%s", stackTrace)
	}
}

func updateBuildInfo() {
	if version == DEFAULT_VERSION {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			revision, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.revision"
			})
			if ok {
				commit = revision.Value
				// if fluoresce was built from source we'll show the version as the
				// abbreviated commit hash
				version = utils.SafeTruncate(revision.Value, 7)
			}

			// if version hasn't been set we assume that neither has the date
			time, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.time"
			})
			if ok {
				date = time.Value
			}
		}
	}
}
