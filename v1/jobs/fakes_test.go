package jobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
	"github.com/Aleph-Alpha/annotation-engine/v1/kube/mock"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/progress"
)

type stopFlag struct{ atomic.Bool }

func (f *stopFlag) Stopped() bool { return f.Load() }

// fakeStore keeps everything in memory.
type fakeStore struct {
	mu sync.Mutex

	algorithms  map[int64]*models.Algorithm
	projects    map[int64]bool
	members     map[[2]int64]bool
	media       []models.Media
	annotations map[int64][]models.Localization

	running  map[int64]string
	results  []*models.AlgorithmResult
	packages []*models.Package
	finished []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		algorithms:  map[int64]*models.Algorithm{},
		projects:    map[int64]bool{},
		members:     map[[2]int64]bool{},
		annotations: map[int64][]models.Localization{},
		running:     map[int64]string{},
	}
}

var _ Store = (*fakeStore)(nil)

func (s *fakeStore) Algorithm(_ context.Context, id int64) (*models.Algorithm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.algorithms[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return a, nil
}

func (s *fakeStore) ProjectExists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id], nil
}

func (s *fakeStore) IsMember(_ context.Context, projectID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[[2]int64{projectID, userID}], nil
}

func (s *fakeStore) MissingMedia(_ context.Context, ids []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []int64
	for _, id := range ids {
		found := false
		for _, m := range s.media {
			found = found || m.ID == id
		}
		if !found {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *fakeStore) Media(_ context.Context, ids []int64) ([]models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Media
	for _, m := range s.media {
		if want[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) MediaAnnotations(_ context.Context, mediaID int64) ([]models.Localization, []models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotations[mediaID], []models.State{}, nil
}

func (s *fakeStore) Token(context.Context, int64) (string, error) {
	return "token", nil
}

func (s *fakeStore) MarkRunning(_ context.Context, jobID int64, podName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[jobID] = podName
	return nil
}

func (s *fakeStore) SaveResult(_ context.Context, result *models.AlgorithmResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *fakeStore) SavePackage(_ context.Context, pkg *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages = append(s.packages, pkg)
	return nil
}

func (s *fakeStore) FinishJob(_ context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, jobID)
	return nil
}

type event struct {
	State   string
	Message string
	Percent int
}

// fakeReporter records every call of every run it hands out.
type fakeReporter struct {
	mu      sync.Mutex
	headers []progress.Header
	events  []event
}

func (f *fakeReporter) factory(h progress.Header) Reporter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, h)
	return f
}

func (f *fakeReporter) add(e event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeReporter) Queued(_ context.Context, msg string) error {
	return f.add(event{"queued", msg, 0})
}

func (f *fakeReporter) Progress(_ context.Context, msg string, pct int) error {
	return f.add(event{progress.StateStarted, msg, pct})
}

func (f *fakeReporter) Failed(_ context.Context, msg string) error {
	return f.add(event{progress.StateFailed, msg, 0})
}

func (f *fakeReporter) Finished(_ context.Context, msg string, _ map[string]interface{}) error {
	return f.add(event{progress.StateFinished, msg, 0})
}

func (f *fakeReporter) Events() []event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event(nil), f.events...)
}

// terminal returns the failed and finished events.
func (f *fakeReporter) terminal() []event {
	var out []event
	for _, e := range f.Events() {
		if e.State == progress.StateFailed || e.State == progress.StateFinished {
			out = append(out, e)
		}
	}
	return out
}

// fakeObjects is an in-memory object store.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (o *fakeObjects) Put(_ context.Context, key string, reader io.Reader, _ ...int64) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return int64(len(data)), nil
}

func (o *fakeObjects) PutFile(ctx context.Context, key, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return o.Put(ctx, key, f)
}

func (o *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return data, nil
}

func (o *fakeObjects) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := o.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *fakeObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

// fakeCluster scripts the kube mock. Each job gets at most one pod, named
// after the job; a job's counters follow the phase of its pod.
type fakeCluster struct {
	mu sync.Mutex

	created []string
	deleted []string
	pods    map[string]*kubecore.Pod
	// logs is the snapshot log of a pod.
	logs map[string]string
	// follow opens the followed log of a pod.
	follow map[string]func() io.ReadCloser
	// podFor decides the pod a newly created job gets; nil means none.
	podFor func(job string) *kubecore.Pod
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		pods:   map[string]*kubecore.Pod{},
		logs:   map[string]string{},
		follow: map[string]func() io.ReadCloser{},
	}
}

func pod(job string, phase kubecore.PodPhase) *kubecore.Pod {
	p := &kubecore.Pod{}
	p.Name = job
	p.Labels = map[string]string{"job": job}
	p.Spec.Containers = []kubecore.Container{{Name: "c"}}
	p.Status.Phase = phase
	return p
}

func (c *fakeCluster) setPhase(job string, phase kubecore.PodPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pods[job]; ok {
		p.Status.Phase = phase
	}
}

func (c *fakeCluster) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

func (c *fakeCluster) Created() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.created...)
}

func notFound(name string) error {
	return kubeerr.NewNotFound(schema.GroupResource{Resource: "pods"}, name)
}

func (c *fakeCluster) mock() *mock.MockClient {
	m := mock.NewMockClient()
	m.Impl.CreateSecret = func(_ context.Context, _ string, s *kubecore.Secret) (*kubecore.Secret, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.created = append(c.created, s.Name)
		return s, nil
	}
	m.Impl.CreateConfigMap = func(_ context.Context, _ string, cm *kubecore.ConfigMap) (*kubecore.ConfigMap, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.created = append(c.created, cm.Name)
		return cm, nil
	}
	m.Impl.CreateJob = func(_ context.Context, _ string, job *kubebatch.Job) (*kubebatch.Job, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.created = append(c.created, job.Name)
		if c.podFor != nil {
			if p := c.podFor(job.Name); p != nil {
				c.pods[job.Name] = p
			}
		}
		return job, nil
	}
	m.Impl.GetJob = func(_ context.Context, _ string, name string) (*kubebatch.Job, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		job := &kubebatch.Job{}
		job.Name = name
		if p, ok := c.pods[name]; ok {
			switch p.Status.Phase {
			case kubecore.PodSucceeded:
				job.Status.Succeeded = 1
			default:
				job.Status.Active = 1
			}
		}
		return job, nil
	}
	m.Impl.FindPods = func(_ context.Context, _ string, ls kube.LabelSelector) ([]kubecore.Pod, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if p, ok := c.pods[ls["job"]]; ok {
			return []kubecore.Pod{*p.DeepCopy()}, nil
		}
		return nil, nil
	}
	m.Impl.GetPod = func(_ context.Context, _ string, name string) (*kubecore.Pod, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if p, ok := c.pods[name]; ok {
			return p.DeepCopy(), nil
		}
		return nil, notFound(name)
	}
	m.Impl.Log = func(_ context.Context, _ string, pod string, _ string, follow bool) (io.ReadCloser, error) {
		c.mu.Lock()
		open, ok := c.follow[pod]
		text := c.logs[pod]
		c.mu.Unlock()
		if follow && ok {
			return open(), nil
		}
		return io.NopCloser(bytes.NewBufferString(text)), nil
	}
	del := func(name string) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.deleted = append(c.deleted, name)
		return nil
	}
	m.Impl.DeleteJob = func(_ context.Context, _ string, name string) error { return del(name) }
	m.Impl.DeleteSecret = func(_ context.Context, _ string, name string) error { return del(name) }
	m.Impl.DeleteConfigMap = func(_ context.Context, _ string, name string) error { return del(name) }
	return m
}

// eofReader calls onEOF once the stream is drained.
type eofReader struct {
	r     io.Reader
	onEOF func()
	once  sync.Once
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if errors.Is(err, io.EOF) {
		e.once.Do(e.onEOF)
	}
	return n, err
}

func (e *eofReader) Close() error { return nil }
