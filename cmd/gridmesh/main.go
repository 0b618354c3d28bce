// Package main is the single-binary entrypoint for GridMesh.
package main

import "github.com/gridmesh-network/gridmesh/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
