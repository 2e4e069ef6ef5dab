package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/cncctl/config"
)

func main() {
	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	outputDir := "schema"
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}

	// The logging extension section is maintained by hand in the embedded
	// copy; this output is the starting point when the typed sections change.
	outputPath := filepath.Join(outputDir, "cncctl.generated.schema.json")
	if err := os.WriteFile(outputPath, schemaBytes, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Successfully generated schema at %s", outputPath)
}
