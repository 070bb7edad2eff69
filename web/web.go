// Package web embeds the browser page served at /.
package web

import "embed"

//go:embed static
var Static embed.FS
