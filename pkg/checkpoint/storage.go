package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fleettools/coordinator/pkg/coreerrors"
)

// writeFile persists the checkpoint's JSON twin at
// <state_dir>/checkpoints/<mission_id>/<checkpoint_id>.json, and refreshes
// the latest.json pointer in the same directory, both via a temp-file +
// rename so a crash mid-write never leaves a half-written file behind
// (§4.7 "dual storage").
func (w *Writer) writeFile(missionID, checkpointID string, payload map[string]interface{}) error {
	dir := filepath.Join(w.cfg.StateDir, "checkpoints", missionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return coreerrors.Wrap(coreerrors.KindInternal, err, "failed to create checkpoint directory")
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindInternal, err, "failed to encode checkpoint JSON")
	}
	target := filepath.Join(dir, checkpointID+".json")
	if err := atomicWrite(target, encoded); err != nil {
		return err
	}
	return atomicWrite(filepath.Join(dir, "latest.json"), encoded)
}

func atomicWrite(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return coreerrors.Wrap(coreerrors.KindInternal, err, "failed to write checkpoint temp file")
	}
	if err := os.Rename(tmp, target); err != nil {
		return coreerrors.Wrap(coreerrors.KindInternal, err, "failed to rename checkpoint temp file")
	}
	return nil
}

// readLatestFile reads the latest.json pointer for a mission, used as a
// fallback source during recovery when the DB row is unavailable.
func (w *Writer) readLatestFile(missionID string) (map[string]interface{}, error) {
	path := filepath.Join(w.cfg.StateDir, "checkpoints", missionID, "latest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindNotFound, err, "no on-disk checkpoint found for mission "+missionID)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindInternal, err, "failed to decode on-disk checkpoint")
	}
	return payload, nil
}
