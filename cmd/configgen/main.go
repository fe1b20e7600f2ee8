package main

import (
	"flag"
	"log"

	"github.com/danmuck/magicctl/internal/config"
)

func main() {
	output := flag.String("output", "farm.toml", "output path for the farm config template")
	validate := flag.Bool("validate", false, "validate an existing farm config file")
	input := flag.String("input", "farm.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated farm config at %s (dbname=%s, clusters=%d, swift=%v)",
			*input, cfg.DBName, len(cfg.Database.Clusters), cfg.Swift.Enabled)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote farm config template to %s", *output)
}
