package main

import (
	"os"

	"github.com/covstar/luacov/internal/cmd/luacov"
)

func main() {
	os.Exit(luacov.Run(os.Args[1:]))
}
