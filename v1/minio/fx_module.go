package minio

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
)

var FXModule = fx.Module("minio",
	fx.Provide(
		NewMinioWithDI,
		func(m *MinioClient) Client { return m },
	),
)

type MinioParams struct {
	fx.In

	Config Config
	Logger *logger.Logger `optional:"true"`
}

func NewMinioWithDI(params MinioParams) (*MinioClient, error) {
	if params.Logger == nil {
		return NewClient(params.Config, nil)
	}
	return NewClient(params.Config, params.Logger)
}
