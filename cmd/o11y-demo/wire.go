//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"go.eggybyte.com/o11y/servicex"
)

func initializeKit(ctx context.Context, file servicex.ConfigFile, sources servicex.DataSources) (*servicex.Kit, error) {
	wire.Build(servicex.ProviderSet)
	return nil, nil
}
