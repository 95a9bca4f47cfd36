package cmd

import (
	"encoding/json"
	"io"
	"os"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/meta"
)

// readSnapshot decodes a system-metadata snapshot from path, or from stdin
// when path is "-".
func readSnapshot(stdin io.Reader, path string) (meta.Snapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return meta.Snapshot{}, ierrors.ValidationError("cannot read snapshot", err).
			WithDetail("path", path)
	}

	var snap meta.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return meta.Snapshot{}, ierrors.New(ierrors.ErrCodeInvalidSnapshot, "cannot decode snapshot", err).
			WithDetail("path", path)
	}
	if snap.Identifier == "" {
		return meta.Snapshot{}, ierrors.New(ierrors.ErrCodeInvalidSnapshot, "snapshot has no identifier", nil).
			WithDetail("path", path)
	}
	return snap, nil
}
