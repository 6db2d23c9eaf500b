package main

import (
	"github.com/Paintersrp/procmux/internal/cli"
	"github.com/Paintersrp/procmux/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
