package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HTTPRegistry asks a remote registry service to validate view keys.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRegistry(baseURL string, timeout time.Duration) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type isKeyValidRequest struct {
	FactoryKey string         `json:"factory_key"`
	Address    common.Address `json:"address"`
	ViewingKey string         `json:"viewing_key"`
}

type isKeyValidResponse struct {
	IsValid *bool `json:"is_valid"`
}

func (r *HTTPRegistry) IsKeyValid(ctx context.Context, factoryKey string, owner common.Address, viewKey string) (bool, error) {
	body, err := json.Marshal(isKeyValidRequest{FactoryKey: factoryKey, Address: owner, ViewingKey: viewKey})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/is_key_valid", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	var out isKeyValidResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode registry response: %w", err)
	}
	if out.IsValid == nil {
		return false, fmt.Errorf("registry response missing is_valid")
	}
	return *out.IsValid, nil
}

var _ Registry = (*HTTPRegistry)(nil)
