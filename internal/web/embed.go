// Package web embeds the static single-page board UI.
package web

import "embed"

// Assets contains the embedded board page.
//
//go:embed index.html
var Assets embed.FS
