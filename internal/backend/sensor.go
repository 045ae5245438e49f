package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/greeneye/companion/internal/sensor"
)

// LatestSnapshot fetches the most recent sensor reading for a device.
// The identifier is passed through as given; callers decide whether to
// send the raw or canonical form.
func (c *Client) LatestSnapshot(ctx context.Context, deviceID string) (sensor.Snapshot, error) {
	path := cacheBust("/api/latest_sensor_data/" + pathEscape(deviceID))
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return sensor.Snapshot{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return sensor.Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return sensor.ParsePayload(raw), nil
}
