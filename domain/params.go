package domain

import (
	"encoding/json"
	"fmt"
)

// OperationParams is the typed parameter record behind Operation.Parameters.
// Exactly one concrete variant exists per OperationType.
type OperationParams interface {
	operationParams()
}

// VersionControlParams drives repository operations.
type VersionControlParams struct {
	Repository string   `json:"repository"`
	Branch     string   `json:"branch,omitempty"`
	RemoteURL  string   `json:"remoteUrl,omitempty"`
	Message    string   `json:"message,omitempty"`
	Files      []string `json:"files,omitempty"`
}

// FilesystemParams drives sandboxed file operations.
type FilesystemParams struct {
	Path      string `json:"path"`
	Content   string `json:"content,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

// ContinuousIntegrationParams drives pipeline triggers and status checks.
type ContinuousIntegrationParams struct {
	Pipeline string            `json:"pipeline"`
	Ref      string            `json:"ref,omitempty"`
	Inputs   map[string]string `json:"inputs,omitempty"`
}

// CloudProvisioningParams drives resource provisioning requests.
type CloudProvisioningParams struct {
	Resource string            `json:"resource"`
	Region   string            `json:"region,omitempty"`
	Size     string            `json:"size,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// DatabaseParams drives single-statement database operations.
type DatabaseParams struct {
	Statement string `json:"statement"`
	Args      []any  `json:"args,omitempty"`
}

func (VersionControlParams) operationParams()        {}
func (FilesystemParams) operationParams()            {}
func (ContinuousIntegrationParams) operationParams() {}
func (CloudProvisioningParams) operationParams()     {}
func (DatabaseParams) operationParams()              {}

// DecodeParams resolves raw parameters into the typed variant for the
// operation type. The switch is exhaustive over OperationType; anything else
// is ErrUnknownOperationType.
func DecodeParams(t OperationType, raw json.RawMessage) (OperationParams, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch t {
	case OperationVersionControl:
		var p VersionControlParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode version-control parameters: %w", err)
		}
		return p, nil
	case OperationFilesystem:
		var p FilesystemParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode filesystem parameters: %w", err)
		}
		return p, nil
	case OperationContinuousIntegration:
		var p ContinuousIntegrationParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode continuous-integration parameters: %w", err)
		}
		return p, nil
	case OperationCloudProvisioning:
		var p CloudProvisioningParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode cloud-provisioning parameters: %w", err)
		}
		return p, nil
	case OperationDatabase:
		var p DatabaseParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode database parameters: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperationType, t)
	}
}
