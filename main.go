package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"imagecleanse/logging"
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	logging.CloseLogFiles()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
