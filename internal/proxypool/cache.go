package proxypool

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/pkg/fileutil"
)

func loadCache(path string) (CachePayload, bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return CachePayload{}, false, nil
	}
	if err != nil {
		return CachePayload{}, false, err
	}
	var payload CachePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return CachePayload{}, false, err
	}
	return payload, true, nil
}

func saveCache(path string, payload CachePayload) error {
	payload.SavedAt = time.Now()
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if classified := fileutil.AtomicWriteFile(path, body, 0644); classified != nil {
		return classified
	}
	return nil
}
