package main

import (
	"github.com/robotalks/sdcard.go/pkg/cli/sh"

	_ "github.com/robotalks/sdcard.go/pkg/cli/cmds/card"
)

//go-build: CGO_ENABLED=0

func init() {
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
