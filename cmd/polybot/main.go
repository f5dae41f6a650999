package main

import (
	"os"

	"github.com/blacktop/polybot/cmd"
	"github.com/blacktop/polybot/internal/logutil"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logutil.Errorf("%v", err)
		os.Exit(1)
	}
}
