// Package tools exposes the user management operations as named tools with
// JSON Schema described inputs. A Registry validates raw JSON arguments
// against each tool's schema before decoding them into the typed request and
// dispatching to the service.
package tools
