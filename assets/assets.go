// Package assets embeds the arenas shipped with the binaries.
package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/automoto/netcode/shared/leveldata"
)

//go:embed all:arenas
var assetFS embed.FS

// ArenaDir is the directory holding .tmx arenas inside FS.
const ArenaDir = "arenas"

// FS exposes the embedded assets.
func FS() fs.FS {
	return assetFS
}

// LoadArena resolves an arena reference. An empty ref yields the open default
// arena, a bare name loads an embedded arena, anything with a .tmx suffix is
// read from disk.
func LoadArena(ref string, width, height int) (*leveldata.Arena, error) {
	switch {
	case ref == "":
		return leveldata.Open(width, height), nil
	case strings.HasSuffix(ref, ".tmx"):
		dir, file := path.Split(ref)
		if dir == "" {
			dir = "."
		}
		return leveldata.Load(os.DirFS(dir), file)
	default:
		arena, err := leveldata.Load(assetFS, path.Join(ArenaDir, ref+".tmx"))
		if err != nil {
			return nil, fmt.Errorf("embedded arena %q: %w", ref, err)
		}
		return arena, nil
	}
}
