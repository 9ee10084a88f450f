package main

import (
	"os"

	"github.com/vibeflow/taskvibe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
