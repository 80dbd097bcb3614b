package main

import (
	"github.com/dl-alexandre/docsync/internal/cli"
)

func main() {
	_ = cli.Execute()
}
