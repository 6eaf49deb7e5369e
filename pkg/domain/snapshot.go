package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is the only backup format version produced and accepted.
const SnapshotVersion = 1

// BackupPrefix prefixes every exported backup filename.
const BackupPrefix = "localemr-backup-"

// Snapshot is the versioned export/import document.
type Snapshot struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Patients   []Patient `json:"patients"`
}

// BackupFilename returns the canonical export filename for the given instant.
func BackupFilename(at time.Time) string {
	return BackupPrefix + at.UTC().Format("2006-01-02") + ".json"
}

// EncodeSnapshot renders s as two-space indented JSON. A nil patient list is
// written as an empty array so the document always re-imports.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	if s.Patients == nil {
		s.Patients = []Patient{}
	}
	return json.MarshalIndent(s, "", "  ")
}

// DecodeSnapshot parses a backup document. It fails with an ErrInvalidBackup
// ValidationError unless the document is a JSON object whose patients field is
// an array of objects. Nothing about the current collection is touched here.
func DecodeSnapshot(doc []byte) (Snapshot, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(doc, &envelope); err != nil {
		return Snapshot{}, InvalidBackup(err)
	}
	raw, ok := envelope["patients"]
	if !ok {
		return Snapshot{}, InvalidBackup(fmt.Errorf("missing patients array"))
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Snapshot{}, InvalidBackup(fmt.Errorf("patients is not an array"))
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return Snapshot{}, InvalidBackup(err)
	}
	out := Snapshot{Patients: make([]Patient, 0, len(items))}
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return Snapshot{}, InvalidBackup(fmt.Errorf("patients[%d] is not an object", i))
		}
		var p Patient
		if err := json.Unmarshal(item, &p); err != nil {
			return Snapshot{}, InvalidBackup(fmt.Errorf("patients[%d]: %w", i, err))
		}
		out.Patients = append(out.Patients, p)
	}
	if v, ok := envelope["version"]; ok {
		_ = json.Unmarshal(v, &out.Version)
	}
	if at, ok := envelope["exportedAt"]; ok {
		_ = json.Unmarshal(at, &out.ExportedAt)
	}
	seen := make(map[int64]int, len(out.Patients))
	for i, p := range out.Patients {
		if p.ID == 0 {
			continue
		}
		if p.ID < 0 {
			return Snapshot{}, InvalidBackup(fmt.Errorf("patients[%d] has negative id %d", i, p.ID))
		}
		if prev, dup := seen[p.ID]; dup {
			return Snapshot{}, InvalidBackup(fmt.Errorf("patients[%d] repeats id %d from patients[%d]", i, p.ID, prev))
		}
		seen[p.ID] = i
	}
	return out, nil
}
