// Package buildinfo holds version metadata injected at build time:
//
//	go build -ldflags "-X github.com/dmitrijs2005/biru/internal/buildinfo.Version=v1.0.0 \
//	  -X github.com/dmitrijs2005/biru/internal/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X 'github.com/dmitrijs2005/biru/internal/buildinfo.Date=$(date -u +%F)'" ./cmd/biru
package buildinfo

import (
	"fmt"
	"io"
)

var (
	Version = "N/A"
	Commit  = "N/A"
	Date    = "N/A"
)

// PrintBuildData writes the version banner.
func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", Version)
	fmt.Fprintf(w, "Build date: %s\n", Date)
	fmt.Fprintf(w, "Build commit: %s\n", Commit)
}
