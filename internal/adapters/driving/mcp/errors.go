// Package mcp provides an MCP (Model Context Protocol) server adapter
// for Notelens. It lets AI assistants like Claude search the local note
// corpus and browse its topic maps.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
