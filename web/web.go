// Package web embeds the single-page chat front-end.
package web

import "embed"

//go:embed index.html
var FS embed.FS
