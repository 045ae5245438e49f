package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/greeneye/companion/internal/registry"
)

// ListDevices fetches GET /api/devices and normalizes the response.
// The backend has shipped several field-name generations
// (deviceCode/device_id/device_code/mac and friends); any subset is
// tolerated, and a malformed body decodes to an empty list.
func (c *Client) ListDevices(ctx context.Context) ([]registry.DeviceRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, cacheBust("/api/devices"), "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading device list: %w", err)
	}
	return registry.NormalizeList(raw), nil
}

// RegisterDevice posts a multipart registration to
// POST /api/register_device, matching the device-link form the backend
// expects: mac_address, friendly_name, room, species and an
// image_base64 fallback when no image file is attached.
func (c *Client) RegisterDevice(ctx context.Context, reg registry.Registration) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"mac_address":   reg.MAC,
		"friendly_name": reg.Name,
		"room":          reg.Room,
		"species":       reg.Species,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return fmt.Errorf("building registration form: %w", err)
		}
	}
	if reg.ImageBase64 != "" {
		if err := mw.WriteField("image_base64", reg.ImageBase64); err != nil {
			return fmt.Errorf("building registration form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("building registration form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/register_device", mw.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// deleteShapes are the method/path combinations the backend has
// accepted for deletion across its versions; the first 2xx wins.
var deleteShapes = []struct {
	method string
	format string
}{
	{http.MethodDelete, "/api/devices/%s"},
	{http.MethodPost, "/api/devices/%s/delete"},
	{http.MethodDelete, "/api/device/%s"},
}

// DeleteDevice tries each known delete endpoint shape for the given
// identifier variant. The caller is responsible for iterating
// identifier variants; this method only iterates endpoint shapes.
func (c *Client) DeleteDevice(ctx context.Context, variant string) error {
	var lastErr error
	for _, shape := range deleteShapes {
		path := fmt.Sprintf(shape.format, pathEscape(variant))
		resp, err := c.do(ctx, shape.method, path, "", nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		return nil
	}
	return fmt.Errorf("all delete endpoints rejected %q: %w", variant, lastErr)
}

// ControlDevice posts an actuator command for the device.
func (c *Client) ControlDevice(ctx context.Context, deviceID string, payload map[string]int) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/control_device/"+pathEscape(deviceID), payload)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
