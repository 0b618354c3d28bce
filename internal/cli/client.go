package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/daemon"
)

// apiGet fetches a JSON document from the local node's HTTP API.
func apiGet(path string, out interface{}) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("http://%s:%d%s", cfg.API.Host, cfg.API.Port, path)

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is the node running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s for %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
