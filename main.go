package main

import (
	"github.com/tanpawarit/agentic-support/cmd"
	_ "github.com/tanpawarit/agentic-support/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
