// Command migrate-gen generates the SQL migration file creating the document
// table used by the SQL document store.
//
// Usage:
//
//	go run github.com/getpup/fieldmigrate/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/fieldmigrate/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/fieldmigrate/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/fieldmigrate/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/fieldmigrate/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize the table name:
//
//	go run github.com/getpup/fieldmigrate/cmd/migrate-gen -table fleet_documents -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/fieldmigrate/pkg/migrations"
)

func main() {
	config := migrations.DefaultConfig()

	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", config.OutputFolder, "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		documentsTable = flag.String("table", config.DocumentsTable, "Name of the documents table")
	)

	flag.Parse()

	config.OutputFolder = *outputFolder
	config.DocumentsTable = *documentsTable
	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	if err := migrations.Generate(*adapter, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
