package export

import (
	"embed"
)

//go:embed assets
var frontendFS embed.FS

// frontendAsset returns a bundled frontend file. The bundle is part of the
// binary, so a missing name is a programming error.
func frontendAsset(name string) string {
	data, err := frontendFS.ReadFile("assets/" + name)
	if err != nil {
		panic("missing bundled asset: " + name)
	}
	return string(data)
}
