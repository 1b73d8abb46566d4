// Package main is the single-binary entrypoint for powerlens.
package main

import "github.com/powerlens/powerlens/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
