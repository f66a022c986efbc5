package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/errors"

	"notifier/config"
	"notifier/log"
	"notifier/server"
)

var (
	Date    string
	Version string
)

const banner string = `
              _   _  __ _
  _ __   ___ | |_(_)/ _(_) ___ _ __
 | '_ \ / _ \| __| | |_| |/ _ \ '__|
 | | | | (_) | |_| |  _| |  __/ |
 |_| |_|\___/ \__|_|_| |_|\___|_|
`

func main() {
	os.Exit(run(os.Args[1:]))
}

// run starts the notifier and returns the process exit code.
func run(args []string) int {
	flags := flag.NewFlagSet("notifier", flag.ContinueOnError)
	configFile := flags.String("config", "./etc/notifier.toml", "notifier config file")
	printVersion := flags.Bool("version", false, "print notifier version info and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *printVersion {
		fmt.Printf("version is %s, build at %s\n", Version, Date)
		return 0
	}

	fmt.Print(banner)
	fmt.Printf("version is %s, build at %s\n", Version, Date)

	// build config
	notifierConfig, err := config.NewNotifierConfig(*configFile)
	if err != nil {
		fmt.Printf("NewNotifierConfig error, err:%s\n", err.Error())
		return 1
	}

	// init log
	if err = log.InitLogger(notifierConfig.LogDir, notifierConfig.LogLevel); err != nil {
		fmt.Printf("InitLogger error, err:%s\n", err.Error())
		return 1
	}
	defer log.UnInitLoggers()

	// start
	s, err := server.NewServer(notifierConfig)
	if err != nil {
		fmt.Println(errors.ErrorStack(err))
		return 1
	}

	if err = s.Run(); err != nil {
		log.Log.Errorf("run notifier error, err:%s", err)
		s.Close()
		return 1
	}

	// exit func
	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer signal.Stop(sc)

	select {
	case n := <-sc:
		log.Log.Infof("receive signal %v, closing", n)
	case <-s.Ctx().Done():
		log.Log.Infof("context is done with %v, closing", s.Ctx().Err())
	}

	s.Close()
	return 0
}
