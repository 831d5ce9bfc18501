package jobs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	kubecore "k8s.io/api/core/v1"

	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
)

const progressPrefix = "TATOR_PROGRESS:"

// waitFor polls job until it settles. The first running pod has its log
// streamed into log; when track is set, progress statements in that stream
// are broadcast instead of written.
func (ru *algorithmRun) waitFor(ctx context.Context, job string, log io.Writer, track bool) error {
	r := ru.r
	selector := kube.LabelSelector{"job": job}
	var (
		idle     time.Duration
		streamed bool
	)
	for {
		if err := ru.checkStop(); err != nil {
			return err
		}
		status, err := r.kube.GetJob(ctx, r.namespace, job)
		if err != nil {
			return fmt.Errorf("failed to read job %s: %w", job, err)
		}
		counts := kube.CountsOf(status)

		switch {
		case counts.Succeeded > 0:
			if !streamed {
				ru.snapshotJob(ctx, selector, log)
			}
			return nil

		case counts.Failed > maxPodFailures:
			msg := kube.FailureMessage(status)
			if msg == "" {
				msg = "Error during algorithm execution!"
			}
			return failure(msg, nil)

		case counts.Active > 0:
			pods, err := r.kube.FindPods(ctx, r.namespace, selector)
			if err != nil {
				return fmt.Errorf("failed to list pods of %s: %w", job, err)
			}
			if len(pods) == 0 {
				break
			}
			pod := &pods[0]
			if reason, message, ok := kube.Waiting(pod); ok && kube.ImagePullFailed(reason) {
				fmt.Fprint(log, message)
				return failure("Failed to pull image!", fmt.Errorf("%s: %s", reason, message))
			}
			switch pod.Status.Phase {
			case kubecore.PodRunning:
				if streamed {
					break
				}
				streamed = true
				if err := ru.follow(ctx, pod, log, track); err != nil {
					return err
				}
			case kubecore.PodFailed:
				ru.snapshot(ctx, pod, log)
				return failure("Error during algorithm execution!", nil)
			}

		case counts.Idle():
			idle += r.cfg.PollInterval
			if idle > r.cfg.StallTimeout {
				return failure("Algorithm job could not start!", nil)
			}
		}

		if err := sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// follow streams the pod log until the pod terminates or the run is
// stopped.
func (ru *algorithmRun) follow(ctx context.Context, pod *kubecore.Pod, log io.Writer, track bool) error {
	r := ru.r
	r.logger.Info("Pod is running, streaming its logs", nil, map[string]interface{}{"pod": pod.Name})

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- ru.stream(streamCtx, pod, log, track)
	}()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				r.logger.Warn("Log stream ended with error", err, map[string]interface{}{"pod": pod.Name})
			}
			return ru.settled(ctx, pod.Name)
		case <-ctx.Done():
			cancel()
			<-done
			return ctx.Err()
		case <-ticker.C:
			phase, err := ru.podPhase(ctx, pod.Name)
			if err != nil {
				cancel()
				<-done
				return err
			}
			stopped := ru.stop.Stopped()
			if phase == kubecore.PodFailed || phase == kubecore.PodSucceeded || stopped {
				cancel()
				<-done
			}
			switch {
			case phase == kubecore.PodFailed:
				return failure("Algorithm failed to execute!", nil)
			case phase == kubecore.PodSucceeded:
				return nil
			case stopped:
				return ErrAborted
			}
		}
	}
}

// settled waits for the pod to leave Running after its log stream closed.
func (ru *algorithmRun) settled(ctx context.Context, pod string) error {
	for {
		phase, err := ru.podPhase(ctx, pod)
		if err != nil {
			return err
		}
		switch phase {
		case kubecore.PodFailed:
			return failure("Algorithm failed to execute!", nil)
		case kubecore.PodSucceeded:
			return nil
		}
		if err := ru.checkStop(); err != nil {
			return err
		}
		if err := sleep(ctx, ru.r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (ru *algorithmRun) podPhase(ctx context.Context, name string) (kubecore.PodPhase, error) {
	pod, err := ru.r.kube.GetPod(ctx, ru.r.namespace, name)
	if err != nil {
		return "", fmt.Errorf("failed to read pod %s: %w", name, err)
	}
	return pod.Status.Phase, nil
}

// stream copies the followed log line by line. Closing the stream when ctx
// ends unblocks the scanner.
func (ru *algorithmRun) stream(ctx context.Context, pod *kubecore.Pod, log io.Writer, track bool) error {
	rc, err := ru.r.kube.Log(ctx, ru.r.namespace, pod.Name, containerOf(pod), true)
	if err != nil {
		return fmt.Errorf("failed to stream log of %s: %w", pod.Name, err)
	}
	stopClose := context.AfterFunc(ctx, func() { rc.Close() })
	defer func() {
		if stopClose() {
			rc.Close()
		}
	}()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if track && strings.HasPrefix(line, progressPrefix) {
			if msg, pct, ok := parseProgress(line); ok {
				ru.progress(ctx, msg, pct)
				continue
			}
			fmt.Fprintln(log, "Improperly formatted progress statement below...")
		}
		fmt.Fprintln(log, line)
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

// parseProgress reads "TATOR_PROGRESS:<n>:<msg>" and maps n from the main
// phase's 0..100 onto the run's 15..90 window.
func parseProgress(line string) (string, int, bool) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 {
		return "", 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return "", 0, false
	}
	return parts[2], int(15 + 0.75*n), true
}

func (ru *algorithmRun) snapshotJob(ctx context.Context, selector kube.LabelSelector, log io.Writer) {
	pods, err := ru.r.kube.FindPods(ctx, ru.r.namespace, selector)
	if err != nil || len(pods) == 0 {
		ru.r.logger.Warn("No pod to read logs from", err, map[string]interface{}{"selector": selector.QueryString()})
		return
	}
	ru.snapshot(ctx, &pods[0], log)
}

func (ru *algorithmRun) snapshot(ctx context.Context, pod *kubecore.Pod, log io.Writer) {
	text, err := kube.Snapshot(ctx, ru.r.kube, ru.r.namespace, pod.Name, containerOf(pod))
	if err != nil {
		ru.r.logger.Warn("Failed to read pod log", err, map[string]interface{}{"pod": pod.Name})
		return
	}
	io.WriteString(log, text)
}

func containerOf(pod *kubecore.Pod) string {
	if len(pod.Spec.Containers) > 0 {
		return pod.Spec.Containers[0].Name
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
