package mqtt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nugget/trunk-status/internal/config"
)

// instanceFile is the name of the file holding the instance ID.
const instanceFile = "instance_id"

// LoadOrCreateInstanceID reads the instance ID from a file in dataDir,
// or generates a new UUIDv7 and persists it if the file does not exist.
// The ID survives restarts, so a bridge keeps the same broker client ID.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, instanceFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	idStr := id.String()
	if err := os.WriteFile(path, []byte(idStr+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("persist instance ID to %s: %w", path, err)
	}
	return idStr, nil
}

// ClientID returns the broker client identifier for cfg. With
// unique_client_id set, the random last block of the instance ID is
// appended so several bridges can share a broker.
func ClientID(cfg config.MQTTConfig, instanceID string) string {
	id := cfg.ClientID
	if id == "" {
		id = config.DefaultClientID
	}
	if !cfg.UniqueClientID || instanceID == "" {
		return id
	}
	return id + "-" + instanceID[strings.LastIndex(instanceID, "-")+1:]
}
