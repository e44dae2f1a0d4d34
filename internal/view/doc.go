// Package view renders the HTML pages served next to the MCP endpoints.
package view

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate
