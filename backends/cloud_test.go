package backends

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

func TestCloudDryRunWithoutEndpoint(t *testing.T) {
	h := NewCloudHandler("", nil)

	res, err := h.Execute(context.Background(), "provision", domain.CloudProvisioningParams{
		Resource: "app-service",
		Region:   "australiaeast",
	})
	require.NoError(t, err)
	assert.Equal(t, "dry-run", res.Output["state"])
	assert.Equal(t, "app-service", res.Output["resource"])
}

func TestCloudProvisionPostsRequest(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"state": "provisioning", "resourceId": "res-42"})
	}))
	defer srv.Close()

	h := NewCloudHandler(srv.URL, srv.Client())
	res, err := h.Execute(context.Background(), "provision", domain.CloudProvisioningParams{
		Resource: "storage-account",
		Size:     "standard",
		Tags:     map[string]string{"project": "OF-INTEGRATION"},
	})
	require.NoError(t, err)

	assert.Equal(t, "provision", received["action"])
	assert.Equal(t, "storage-account", received["resource"])
	assert.Equal(t, "provisioning", res.Output["state"])
	assert.Equal(t, "res-42", res.Output["resourceId"])
}

func TestCloudProvisionerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusConflict)
	}))
	defer srv.Close()

	h := NewCloudHandler(srv.URL, srv.Client())
	_, err := h.Execute(context.Background(), "provision", domain.CloudProvisioningParams{Resource: "vm"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestCloudUnknownAction(t *testing.T) {
	h := NewCloudHandler("", nil)
	_, err := h.Execute(context.Background(), "resize", domain.CloudProvisioningParams{Resource: "vm"})
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
}
