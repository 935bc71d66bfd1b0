// Package schema embeds the JSON Schemas of report records.
package schema

import "embed"

// FS holds issue.json and operation.json.
//
//go:embed *.json
var FS embed.FS
