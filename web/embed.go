// Package web holds the board page served at "/".
package web

import _ "embed"

//go:embed index.html
var Index []byte
