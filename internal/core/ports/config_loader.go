package ports

import "go.trai.ch/knit/internal/core/domain"

// ConfigLoader defines the interface for loading the project configuration.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the configuration from dir. A missing file yields the defaults.
	Load(dir string) (*domain.ProjectConfig, error)
}
