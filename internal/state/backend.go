package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/caisson-io/caisson/internal/ir"
)

// DefaultLocalPath is where state lives relative to the working directory
// when no backend block is declared.
const DefaultLocalPath = ".caisson/state.json"

// NewStore builds the store named by the backend declaration. A missing
// declaration means local state in the working directory.
func NewStore(ctx context.Context, backend *ir.Backend, workdir string) (Store, error) {
	if backend == nil {
		return NewLocal(filepath.Join(workdir, DefaultLocalPath)), nil
	}

	switch backend.Type {
	case "local", "":
		path := backend.Settings["path"]
		if path == "" {
			path = DefaultLocalPath
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(workdir, path)
		}
		return NewLocal(path), nil
	case "s3":
		return newS3Store(ctx, backend.Settings)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backend.Type)
	}
}
