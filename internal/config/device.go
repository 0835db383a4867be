package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// deviceFile lives in BaseDir, deliberately outside the synced data
// root: the whole point of the device ID is telling machines apart, so
// it must never travel with the data.
const deviceFile = "device.json"

type deviceRecord struct {
	DeviceID  string `json:"device_id"`
	CreatedAt string `json:"created_at"`
}

// DeviceID returns this machine's stable identity, minting and
// persisting one on first use. Session log entries carry it, and the
// sync merge uses it to order same-second entries from different
// machines.
func DeviceID(baseDir string) (string, error) {
	path := filepath.Join(baseDir, deviceFile)

	data, err := os.ReadFile(path)
	if err == nil {
		var rec deviceRecord
		if jsonErr := json.Unmarshal(data, &rec); jsonErr == nil && rec.DeviceID != "" {
			return rec.DeviceID, nil
		}
		// Unreadable identity: do not silently mint a new one, that
		// would re-shuffle merge ordering for this machine's history.
		return "", fmt.Errorf("device identity at %s is unreadable; restore or delete it", path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read device identity: %w", err)
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	rec := deviceRecord{
		DeviceID:  uuid.NewString(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	encoded, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write device identity: %w", err)
	}
	return rec.DeviceID, nil
}
