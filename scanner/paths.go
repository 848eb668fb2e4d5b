package scanner

import (
	"fmt"
	"path/filepath"
)

func blocksIndexDir(dataDir string) string {
	return filepath.Join(dataDir, "blocks", "index")
}

func chainStateDir(dataDir string) string {
	return filepath.Join(dataDir, "chainstate")
}

func flatFilePath(dataDir, prefix string, n uint32) string {
	return filepath.Join(dataDir, "blocks", fmt.Sprintf("%s%05d.dat", prefix, n))
}
