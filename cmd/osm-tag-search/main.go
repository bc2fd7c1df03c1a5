/*
Package main is the entry point for the osm-tag-search CLI.

osm-tag-search resolves OpenStreetMap tags from the tag knowledge graph and
answers free-text queries with the best matching tags, combining lexical and
semantic retrieval.

Usage:

	osm-tag-search [command]

Examples:

	# Load the knowledge graph and index the manual mappings
	osm-tag-search graph import data/osm_kg.ttl
	osm-tag-search index mappings data/manual_mapping.json --clear

	# Query from the command line or over HTTP
	osm-tag-search search "fast food" --limit 3
	osm-tag-search serve
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/khanglvm/osm-tag-search/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
