// Package tenant handles loading and providing tenant-specific configurations.
package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// Config represents the structure of a single tenant's configuration
type Config struct {
	TenantID          string            `json:"tenantId"`
	Workspaces        []string          `json:"workspaces"`
	Status            string            `json:"status"`
	DatabaseType      string            `json:"databaseType"`
	TursoDatabase     string            `json:"TURSO_DATABASE_URL"`
	TursoToken        string            `json:"TURSO_AUTH_TOKEN"`
	TursoEnabled      bool              `json:"TURSO_ENABLED"`
	JWTSecret         string            `json:"JWT_SECRET"`
	AESKeys           map[string]string `json:"AES_KEYS"`
	FingerprintSecret string            `json:"FINGERPRINT_SECRET"`
	SQLitePath        string            `json:"-"`
}

// AESKeyRing converts the JSON key map (string versions) into the
// version→hex-key ring the PII codec expects.
func (c *Config) AESKeyRing() (map[int]string, error) {
	ring := make(map[int]string, len(c.AESKeys))
	for vs, key := range c.AESKeys {
		v, err := strconv.Atoi(vs)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: AES key version %q is not numeric", c.TenantID, vs)
		}
		ring[v] = key
	}
	return ring, nil
}

// HasWorkspace reports whether a workspace belongs to this tenant. An empty
// workspaces list admits any workspace id, for single-workspace tenants that
// never configured one.
func (c *Config) HasWorkspace(workspaceID string) bool {
	if len(c.Workspaces) == 0 {
		return true
	}
	for _, ws := range c.Workspaces {
		if ws == workspaceID {
			return true
		}
	}
	return false
}

// LoadTenantConfig loads configuration for a specific tenant from its env.json file.
func LoadTenantConfig(tenantID string, logger *logging.ChanneledLogger) (*Config, error) {
	configPath := filepath.Join(config.ConfigPath, tenantID, "env.json")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("tenant config file not found at %s", configPath)
	}

	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read tenant config file: %w", err)
	}

	var tenantConfig Config
	if err := json.Unmarshal(configFile, &tenantConfig); err != nil {
		return nil, fmt.Errorf("could not parse tenant config json: %w", err)
	}

	// Set computed fields
	tenantConfig.TenantID = tenantID
	tenantConfig.SQLitePath = filepath.Join(config.DataPath, tenantID, "pulsetrack.db")

	if len(tenantConfig.AESKeys) == 0 {
		return nil, fmt.Errorf("tenant %s: AES_KEYS is required", tenantID)
	}
	if tenantConfig.FingerprintSecret == "" {
		return nil, fmt.Errorf("tenant %s: FINGERPRINT_SECRET is required", tenantID)
	}
	if tenantConfig.JWTSecret == "" {
		return nil, fmt.Errorf("tenant %s: JWT_SECRET is required", tenantID)
	}

	if logger != nil {
		logger.Tenant().Debug("Tenant config loaded", "tenantId", tenantID, "workspaces", len(tenantConfig.Workspaces))
	}
	return &tenantConfig, nil
}

// TenantRegistry holds the global tenant configuration
type TenantRegistry struct {
	Tenants map[string]TenantInfo `json:"tenants"`
}

// TenantInfo holds tenant metadata
type TenantInfo struct {
	TenantID     string   `json:"tenantId"`
	Workspaces   []string `json:"workspaces"`
	Status       string   `json:"status"`       // "unknown", "inactive", "active"
	DatabaseType string   `json:"databaseType"` // "turso", "sqlite3"
}

// LoadTenantRegistry loads the global tenant registry
func LoadTenantRegistry() (*TenantRegistry, error) {
	registryPath := filepath.Join(config.ConfigPath, "tenants.json")

	if _, err := os.Stat(registryPath); os.IsNotExist(err) {
		// Create default registry if it doesn't exist
		defaultRegistry := &TenantRegistry{
			Tenants: map[string]TenantInfo{
				"default": {
					TenantID:     "default",
					Workspaces:   nil,
					Status:       "inactive",
					DatabaseType: "",
				},
			},
		}
		return defaultRegistry, nil
	}

	data, err := os.ReadFile(registryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant registry: %w", err)
	}

	var registry TenantRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse tenant registry: %w", err)
	}

	return &registry, nil
}

// RegisterTenant adds a new tenant to the registry
func RegisterTenant(tenantID string) error {
	registryPath := filepath.Join(config.ConfigPath, "tenants.json")

	registry, err := LoadTenantRegistry()
	if err != nil {
		return err
	}

	// Add tenant if it doesn't exist
	if _, exists := registry.Tenants[tenantID]; !exists {
		registry.Tenants[tenantID] = TenantInfo{
			TenantID:     tenantID,
			Workspaces:   nil,
			Status:       "inactive",
			DatabaseType: "",
		}

		// Ensure directory exists
		registryDir := filepath.Dir(registryPath)
		if err := os.MkdirAll(registryDir, 0755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}

		// Save registry
		data, err := json.MarshalIndent(registry, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal registry: %w", err)
		}

		if err := os.WriteFile(registryPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write registry: %w", err)
		}
	}

	return nil
}
