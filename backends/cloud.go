package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// CloudHandler forwards provisioning requests to an external provisioner
// endpoint. Without an endpoint it runs in dry-run mode and only echoes the
// request, which keeps development environments side-effect free.
type CloudHandler struct {
	endpoint string
	client   *http.Client
}

// NewCloudHandler creates a handler. endpoint may be empty for dry-run mode;
// client may be nil for http.DefaultClient.
func NewCloudHandler(endpoint string, client *http.Client) *CloudHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &CloudHandler{endpoint: endpoint, client: client}
}

func (h *CloudHandler) Execute(ctx context.Context, action string, params domain.OperationParams) (*Result, error) {
	p, ok := params.(domain.CloudProvisioningParams)
	if !ok {
		return nil, fmt.Errorf("cloud-provisioning: unexpected params type %T", params)
	}
	switch action {
	case "provision", "deprovision", "status":
	default:
		return nil, fmt.Errorf("%w: cloud-provisioning %q", domain.ErrUnknownAction, action)
	}
	if p.Resource == "" {
		return nil, fmt.Errorf("cloud-provisioning: resource is required")
	}

	if h.endpoint == "" {
		return &Result{
			Output: map[string]any{
				"resource": p.Resource,
				"region":   p.Region,
				"action":   action,
				"state":    "dry-run",
			},
		}, nil
	}

	body, err := json.Marshal(map[string]any{
		"action":   action,
		"resource": p.Resource,
		"region":   p.Region,
		"size":     p.Size,
		"tags":     p.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud-provisioning: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cloud-provisioning: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud-provisioning: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("cloud-provisioning: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("cloud-provisioning: provisioner returned %d: %s", resp.StatusCode, respBody)
	}

	output := map[string]any{"resource": p.Resource, "action": action}
	var decoded map[string]any
	if err := json.Unmarshal(respBody, &decoded); err == nil {
		for k, v := range decoded {
			output[k] = v
		}
	} else {
		output["response"] = string(respBody)
	}
	return &Result{Output: output}, nil
}
