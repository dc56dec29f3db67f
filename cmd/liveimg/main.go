package main

import (
	"fmt"
	"os"

	"github.com/livefir/liveimage/cmd/liveimg/commands"
)

// Version information (can be overridden at build time with -ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error

	switch command {
	case "process":
		err = commands.Process(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("liveimg %s (%s)\n", version, commit)
}

func printUsage() {
	fmt.Println(`liveimg - build-time image optimization for component markup

Usage:
  liveimg process <dir> [flags]   rewrite image references in component files
  liveimg version                 print version information
  liveimg help                    show this help

Process flags:
  -o <dir>     write rewritten files into a mirror tree instead of in place
  -c <file>    config file (default: liveimage.yaml in the target dir)
  -ext <list>  comma-separated file extensions to process (default: html,svelte)
  -q           quiet: plain line output instead of the progress UI`)
}
