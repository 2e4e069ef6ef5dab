package main

import (
	"os"

	"github.com/grovetools/cncctl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
