package kube

const DefaultNamespace = "default"

type Config struct {
	// Kubeconfig is a kubeconfig path. Empty means in-cluster credentials.
	Kubeconfig string `yaml:"kubeconfig" envconfig:"KUBE_CONFIG"`
	Namespace  string `yaml:"namespace" envconfig:"KUBE_NAMESPACE"`
}

// NamespaceOrDefault returns the namespace workloads are created in.
func (c Config) NamespaceOrDefault() string {
	if c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}
