package kube

import (
	"context"
	"io"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
)

// IgnoreNotFound maps "already absent" to success.
func IgnoreNotFound(err error) error {
	if kubeerr.IsNotFound(err) {
		return nil
	}
	return err
}

func IsAlreadyExists(err error) bool {
	return kubeerr.IsAlreadyExists(err)
}

// JobCounts are the pod counters of a job status.
type JobCounts struct {
	Active    int32
	Succeeded int32
	Failed    int32
}

func CountsOf(job *kubebatch.Job) JobCounts {
	if job == nil {
		return JobCounts{}
	}
	return JobCounts{
		Active:    job.Status.Active,
		Succeeded: job.Status.Succeeded,
		Failed:    job.Status.Failed,
	}
}

// Idle reports that the job has no pod in any state yet.
func (c JobCounts) Idle() bool {
	return c.Active == 0 && c.Succeeded == 0 && c.Failed == 0
}

// FailureMessage returns the message of the first job condition, if any.
func FailureMessage(job *kubebatch.Job) string {
	if job == nil {
		return ""
	}
	for _, cond := range job.Status.Conditions {
		if cond.Message != "" {
			return cond.Message
		}
	}
	return ""
}

// Waiting returns the reason and message of the first container that is
// waiting to start.
func Waiting(pod *kubecore.Pod) (reason string, message string, ok bool) {
	if pod == nil {
		return "", "", false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if w := cs.State.Waiting; w != nil {
			return w.Reason, w.Message, true
		}
	}
	return "", "", false
}

// ImagePullFailed reports a waiting reason that will not resolve on its own.
func ImagePullFailed(reason string) bool {
	switch reason {
	case "ErrImagePull", "ImagePullBackOff", "InvalidImageName":
		return true
	}
	return false
}

// Snapshot reads the whole current log of a container.
func Snapshot(ctx context.Context, c Client, namespace, pod, container string) (string, error) {
	rc, err := c.Log(ctx, namespace, pod, container, false)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
