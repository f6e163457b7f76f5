package eventstore

import (
	"encoding/json"

	"github.com/flowcore/wfengine/errs"
)

// decodeSnapshot unmarshals snap's data into dst, which must be a pointer.
func decodeSnapshot(snap Snapshot, dst any) error {
	if len(snap.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(snap.Data, dst); err != nil {
		return errs.Serialization("eventstore: decode snapshot: " + err.Error())
	}
	return nil
}
