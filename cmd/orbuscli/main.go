package main

import (
	"github.com/robotalks/orbus.go/pkg/cli/sh"
	"github.com/robotalks/orbus.go/pkg/config"

	_ "github.com/robotalks/orbus.go/pkg/cli/cmds/board"
)

func init() {
	config.SetupFlags()
}

func main() {
	sh.Main()
}
