package trajectory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var trajectoryExts = []string{".json.zst", ".json.gz", ".json"}

func IsTrajectoryFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range trajectoryExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func trimTrajectoryExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range trajectoryExts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// LoadFile decodes every record in path, in file order. Plain, gzip and
// zstd encoded files are accepted.
func LoadFile(path string) ([]TrialRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trajectory %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip trajectory %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening zstd trajectory %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	var records []TrialRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("parsing trajectory %s: %w", path, err)
	}
	return records, nil
}
