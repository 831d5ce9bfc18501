package kube

import (
	"context"
	"fmt"
	"io"
	"os"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client is the subset of the cluster API the job runner uses.
type Client interface {
	CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
	GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
	// DeleteJob removes the job and, in the foreground, its pods.
	DeleteJob(ctx context.Context, namespace string, name string) error

	GetPod(ctx context.Context, namespace string, name string) (*kubecore.Pod, error)
	FindPods(ctx context.Context, namespace string, selector LabelSelector) ([]kubecore.Pod, error)

	CreateSecret(ctx context.Context, namespace string, secret *kubecore.Secret) (*kubecore.Secret, error)
	DeleteSecret(ctx context.Context, namespace string, name string) error

	CreateConfigMap(ctx context.Context, namespace string, cm *kubecore.ConfigMap) (*kubecore.ConfigMap, error)
	DeleteConfigMap(ctx context.Context, namespace string, name string) error

	// Log opens the container log. With follow the stream stays open until
	// the container exits or ctx ends.
	Log(ctx context.Context, namespace string, pod string, container string, follow bool) (io.ReadCloser, error)
}

// LabelSelector is an equality-based selector.
type LabelSelector map[string]string

func (ls LabelSelector) QueryString() string {
	return labels.SelectorFromSet(labels.Set(ls)).String()
}

// k8sClient adapts kubernetes.Interface to Client, avoiding the method
// chains at call sites.
type k8sClient struct {
	client kubernetes.Interface
}

var _ Client = &k8sClient{}

// Wrap adapts a clientset. Tests pass k8s.io/client-go/kubernetes/fake.
func Wrap(c kubernetes.Interface) Client {
	return &k8sClient{client: c}
}

// Connect builds a clientset from cfg.Kubeconfig, or the in-cluster service
// account when it is empty or missing.
func Connect(cfg Config) (kubernetes.Interface, error) {
	var (
		restConfig *rest.Config
		err        error
	)
	kubeconfig := cfg.Kubeconfig
	if kubeconfig != "" {
		if stat, statErr := os.Stat(kubeconfig); statErr != nil || stat.IsDir() {
			kubeconfig = ""
		}
	}
	if kubeconfig == "" {
		restConfig, err = rest.InClusterConfig()
	} else {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return clientset, nil
}

func (k *k8sClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Create(ctx, job, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	foreground := kubeapimeta.DeletePropagationForeground
	return k.client.BatchV1().Jobs(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{
		PropagationPolicy: &foreground,
	})
}

func (k *k8sClient) GetPod(ctx context.Context, namespace string, name string) (*kubecore.Pod, error) {
	return k.client.CoreV1().Pods(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) FindPods(ctx context.Context, namespace string, selector LabelSelector) ([]kubecore.Pod, error) {
	resp, err := k.client.CoreV1().Pods(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: selector.QueryString(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) CreateSecret(ctx context.Context, namespace string, secret *kubecore.Secret) (*kubecore.Secret, error) {
	return k.client.CoreV1().Secrets(namespace).Create(ctx, secret, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) DeleteSecret(ctx context.Context, namespace string, name string) error {
	foreground := kubeapimeta.DeletePropagationForeground
	return k.client.CoreV1().Secrets(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{
		PropagationPolicy: &foreground,
	})
}

func (k *k8sClient) CreateConfigMap(ctx context.Context, namespace string, cm *kubecore.ConfigMap) (*kubecore.ConfigMap, error) {
	return k.client.CoreV1().ConfigMaps(namespace).Create(ctx, cm, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) DeleteConfigMap(ctx context.Context, namespace string, name string) error {
	return k.client.CoreV1().ConfigMaps(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{})
}

func (k *k8sClient) Log(ctx context.Context, namespace string, pod string, container string, follow bool) (io.ReadCloser, error) {
	return k.client.
		CoreV1().
		Pods(namespace).
		GetLogs(pod, &kubecore.PodLogOptions{Container: container, Follow: follow}).
		Stream(ctx)
}
