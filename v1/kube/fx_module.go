package kube

import (
	"go.uber.org/fx"
	"k8s.io/client-go/kubernetes"
)

var FXModule = fx.Module("kube",
	fx.Provide(
		Connect,
		func(c kubernetes.Interface) Client { return Wrap(c) },
	),
)
