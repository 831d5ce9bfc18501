package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"

	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
)

// MockClient fakes kube.Client. Set Impl fields to script behaviour and read
// Called (through Calls) to spy on usage. Unset methods fail.
type MockClient struct {
	Impl struct {
		CreateJob func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
		GetJob    func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
		DeleteJob func(ctx context.Context, namespace string, name string) error

		GetPod   func(ctx context.Context, namespace string, name string) (*kubecore.Pod, error)
		FindPods func(ctx context.Context, namespace string, ls kube.LabelSelector) ([]kubecore.Pod, error)

		CreateSecret func(ctx context.Context, namespace string, secret *kubecore.Secret) (*kubecore.Secret, error)
		DeleteSecret func(ctx context.Context, namespace string, name string) error

		CreateConfigMap func(ctx context.Context, namespace string, cm *kubecore.ConfigMap) (*kubecore.ConfigMap, error)
		DeleteConfigMap func(ctx context.Context, namespace string, name string) error

		Log func(ctx context.Context, namespace string, pod string, container string, follow bool) (io.ReadCloser, error)
	}
	Called Counts

	mu sync.Mutex
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ kube.Client = &MockClient{}

// Counts holds one call counter per method.
type Counts struct {
	CreateJob uint64
	GetJob    uint64
	DeleteJob uint64

	GetPod   uint64
	FindPods uint64

	CreateSecret uint64
	DeleteSecret uint64

	CreateConfigMap uint64
	DeleteConfigMap uint64

	Log uint64
}

var errNotImplemented = errors.New("[MOCK] not implemented")

// Calls returns a snapshot of Called that is safe to read while the code
// under test is still running.
func (m *MockClient) Calls() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Called
}

func (m *MockClient) count(counter *uint64) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()
}

func (m *MockClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	m.count(&m.Called.CreateJob)
	if m.Impl.CreateJob == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreateJob(ctx, namespace, job)
}

func (m *MockClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	m.count(&m.Called.GetJob)
	if m.Impl.GetJob == nil {
		return nil, errNotImplemented
	}
	return m.Impl.GetJob(ctx, namespace, name)
}

func (m *MockClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	m.count(&m.Called.DeleteJob)
	if m.Impl.DeleteJob == nil {
		return errNotImplemented
	}
	return m.Impl.DeleteJob(ctx, namespace, name)
}

func (m *MockClient) GetPod(ctx context.Context, namespace string, name string) (*kubecore.Pod, error) {
	m.count(&m.Called.GetPod)
	if m.Impl.GetPod == nil {
		return nil, errNotImplemented
	}
	return m.Impl.GetPod(ctx, namespace, name)
}

func (m *MockClient) FindPods(ctx context.Context, namespace string, ls kube.LabelSelector) ([]kubecore.Pod, error) {
	m.count(&m.Called.FindPods)
	if m.Impl.FindPods == nil {
		return nil, errNotImplemented
	}
	return m.Impl.FindPods(ctx, namespace, ls)
}

func (m *MockClient) CreateSecret(ctx context.Context, namespace string, secret *kubecore.Secret) (*kubecore.Secret, error) {
	m.count(&m.Called.CreateSecret)
	if m.Impl.CreateSecret == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreateSecret(ctx, namespace, secret)
}

func (m *MockClient) DeleteSecret(ctx context.Context, namespace string, name string) error {
	m.count(&m.Called.DeleteSecret)
	if m.Impl.DeleteSecret == nil {
		return errNotImplemented
	}
	return m.Impl.DeleteSecret(ctx, namespace, name)
}

func (m *MockClient) CreateConfigMap(ctx context.Context, namespace string, cm *kubecore.ConfigMap) (*kubecore.ConfigMap, error) {
	m.count(&m.Called.CreateConfigMap)
	if m.Impl.CreateConfigMap == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreateConfigMap(ctx, namespace, cm)
}

func (m *MockClient) DeleteConfigMap(ctx context.Context, namespace string, name string) error {
	m.count(&m.Called.DeleteConfigMap)
	if m.Impl.DeleteConfigMap == nil {
		return errNotImplemented
	}
	return m.Impl.DeleteConfigMap(ctx, namespace, name)
}

func (m *MockClient) Log(ctx context.Context, namespace string, pod string, container string, follow bool) (io.ReadCloser, error) {
	m.count(&m.Called.Log)
	if m.Impl.Log == nil {
		return nil, errNotImplemented
	}
	return m.Impl.Log(ctx, namespace, pod, container, follow)
}
