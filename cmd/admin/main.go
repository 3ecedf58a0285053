package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "state":
		stateCmd(args)
	case "save":
		saveCmd(args)
	case "auth":
		authCmd(args)
	case "override":
		overrideCmd(args)
	case "reset":
		resetCmd(args)
	case "db":
		dbCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <state|save|auth|override|reset|db> [flags]")
}
