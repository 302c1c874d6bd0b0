package check

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/convprobe/internal/serialization"
)

// WriteTensors saves each report's compared tensors as
// <scenario>_<dtype>.safetensors in dir and returns the written paths.
func WriteTensors(dir string, reports []*Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}

	paths := make([]string, 0, len(reports))
	for _, r := range reports {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.safetensors", r.Scenario, r.DType))
		meta := map[string]string{
			"scenario": r.Scenario,
			"dtype":    r.DType,
			"seed":     strconv.FormatInt(r.Seed, 10),
			"module":   r.Module,
			"pass":     strconv.FormatBool(r.Pass()),
		}
		if err := serialization.WriteFile(path, r.Tensors, meta); err != nil {
			return paths, fmt.Errorf("dump %s: %w", r.Scenario, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
