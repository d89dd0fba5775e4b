package main

import (
	"flag"
	"fmt"
	"os"

	"fieldplan/cmd/mockgen/engine"
)

func main() {
	outDir := flag.String("out", "./.cache", "Output directory for mock input files")
	branches := flag.Int("branches", 2, "Number of branches to generate")
	partners := flag.Int("partners", 40, "Partners per branch")
	seed := flag.Int64("seed", 1, "Random seed")
	weeks := flag.Int("weeks", 8, "Weeks of consumption history")
	flag.Parse()

	cfg := engine.GeneratorConfig{
		Branches: *branches,
		Partners: *partners,
		Weeks:    *weeks,
		Seed:     *seed,
	}

	fmt.Printf("Generating %d branches x %d partners (%d weeks of history) to %s...\n",
		cfg.Branches, cfg.Partners, cfg.Weeks, *outDir)

	if err := engine.Generate(cfg, *outDir); err != nil {
		fmt.Printf("Failed to generate mock data: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Done.")
}
