//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package runtime

import (
	"github.com/google/wire"

	"github.com/zeusync/joynr/internal/config"
)

func initialize(cfg config.Config) (*Runtime, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
