//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/meshsync/internal/config"
)

func InitializeNode(cfg *config.Network) (*Node, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
