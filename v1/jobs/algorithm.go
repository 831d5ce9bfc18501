package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	kubebatch "k8s.io/api/batch/v1"

	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/progress"
)

// Phase is a state of an algorithm run.
type Phase string

const (
	PhasePending  Phase = "PENDING"
	PhaseSetup    Phase = "SETUP"
	PhaseMain     Phase = "MAIN"
	PhaseTeardown Phase = "TEARDOWN"
	PhaseFinished Phase = "FINISHED"
	PhaseFailed   Phase = "FAILED"
)

const (
	msgCompleted      = "Algorithm completed!"
	msgInvalidRequest = "Invalid request!"
)

// objectKind tags a cluster object created by a run.
type objectKind int

const (
	kindJob objectKind = iota
	kindSecret
	kindConfigMap
)

type clusterObject struct {
	kind objectKind
	name string
}

// algorithmRun is the state of one RunAlgorithm call.
type algorithmRun struct {
	r    *Runner
	req  AlgorithmRequest
	stop Stopper
	rep  Reporter

	mediaIDs  []int64
	algorithm *models.Algorithm
	started   time.Time
	phase     Phase
	message   string
	workDir   string

	// logs maps a phase to its local log file, once opened.
	logs    map[Phase]string
	created map[clusterObject]bool
}

// RunAlgorithm executes one algorithm run to completion and returns the
// recorded result. It never panics and never returns an error: every fault
// becomes a FAILED result, and cleanup always runs.
func (r *Runner) RunAlgorithm(ctx context.Context, stop Stopper, req AlgorithmRequest) (result *models.AlgorithmResult) {
	ctx = r.traced(ctx, req.Trace)
	ru := &algorithmRun{
		r:       r,
		req:     req,
		stop:    stop,
		started: r.now(),
		phase:   PhasePending,
		logs:    map[Phase]string{},
		created: map[clusterObject]bool{},
		workDir: filepath.Join(r.cfg.MediaRoot, "working", req.RunUID),
	}
	ru.rep = r.reporters(progress.Header{
		Prefix:    progress.PrefixAlgorithm,
		ProjectID: req.ProjectID,
		GID:       req.GroupID,
		UID:       req.RunUID,
		Name:      "algorithm",
		User:      strconv.FormatInt(req.UserID, 10),
		Aux: map[string]interface{}{
			"media_ids": req.MediaList,
			"sections":  req.SectionList,
		},
	})

	defer func() {
		if p := recover(); p != nil {
			ru.fail(fmt.Errorf("algorithm run panicked: %v", p))
		}
		result = ru.cleanup(context.WithoutCancel(ctx))
	}()

	if err := ru.execute(ctx); err != nil {
		ru.fail(err)
		return nil
	}
	ru.phase = PhaseFinished
	ru.message = msgCompleted
	return nil
}

func (ru *algorithmRun) fail(err error) {
	ru.r.logger.Error("Algorithm run failed", err, map[string]interface{}{
		"run_uid": ru.req.RunUID,
		"phase":   string(ru.phase),
	})
	ru.phase = PhaseFailed
	ru.message = reportedMessage(err)
}

func (ru *algorithmRun) checkStop() error {
	if ru.stop.Stopped() {
		return ErrAborted
	}
	return nil
}

// progress reports without failing the run; a broken broadcaster must not
// take the workload down with it.
func (ru *algorithmRun) progress(ctx context.Context, msg string, pct int) {
	if err := ru.rep.Progress(ctx, msg, pct); err != nil {
		ru.r.logger.Warn("Failed to broadcast progress", err, map[string]interface{}{"run_uid": ru.req.RunUID})
	}
}

func (ru *algorithmRun) execute(ctx context.Context) error {
	r := ru.r
	if err := ru.rep.Queued(ctx, "Preparing..."); err != nil {
		r.logger.Warn("Failed to broadcast queued state", err, map[string]interface{}{"run_uid": ru.req.RunUID})
	}

	if err := ru.validate(ctx); err != nil {
		return err
	}
	if err := r.store.MarkRunning(ctx, ru.req.JobID, mainJobName(ru.req.RunUID)); err != nil {
		return fmt.Errorf("failed to mark job %d running: %w", ru.req.JobID, err)
	}
	token, err := r.store.Token(ctx, ru.req.UserID)
	if err != nil {
		return fmt.Errorf("failed to get api token: %w", err)
	}
	if err := os.MkdirAll(ru.workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	env := r.runEnv(ru.req, token, ru.algorithm.Arguments)
	uid := ru.req.RunUID

	if err := ru.checkStop(); err != nil {
		return err
	}
	marshalSecret := marshalSecretName(uid)
	if err := ru.createSecret(ctx, marshalSecret, r.cfg.DockerRegistry, r.cfg.DockerUsername, r.cfg.DockerPassword); err != nil {
		return err
	}
	marshal := withDefaultTag(r.cfg.DockerRegistry + "/" + marshalImage)

	if err := ru.checkStop(); err != nil {
		return err
	}
	ru.progress(ctx, "Setting up...", 12)
	err = ru.runPhase(ctx, PhaseSetup, ru.algorithm.SetupScript, workload{
		name:       setupJobName(uid),
		app:        appSetup,
		container:  marshalContainer,
		image:      marshal,
		command:    []string{"python", "/" + setupFile},
		secret:     marshalSecret,
		env:        env,
		scriptMap:  setupScriptName(uid),
		scriptFile: setupFile,
	})
	if err != nil {
		return err
	}

	if err := ru.checkStop(); err != nil {
		return err
	}
	algoSecret := algoSecretName(uid)
	if err := ru.createSecret(ctx, algoSecret, ru.algorithm.Registry, ru.algorithm.Username, ru.algorithm.Password); err != nil {
		return err
	}

	if err := ru.checkStop(); err != nil {
		return err
	}
	ru.progress(ctx, "Executing...", 15)
	err = ru.runPhase(ctx, PhaseMain, "", workload{
		name:      mainJobName(uid),
		app:       appMain,
		container: algorithmContainer,
		image:     withDefaultTag(ru.algorithm.Image),
		secret:    algoSecret,
		gpu:       ru.algorithm.NeedsGPU,
		env:       env,
	})
	if err != nil {
		return err
	}

	if err := ru.checkStop(); err != nil {
		return err
	}
	ru.progress(ctx, "Tearing down...", 90)
	return ru.runPhase(ctx, PhaseTeardown, ru.algorithm.TeardownScript, workload{
		name:       teardownJobName(uid),
		app:        appTeardown,
		container:  marshalContainer,
		image:      marshal,
		command:    []string{"python", "/" + teardownFile},
		secret:     marshalSecret,
		env:        env,
		scriptMap:  teardownScriptName(uid),
		scriptFile: teardownFile,
	})
}

// validate loads the algorithm and checks every record the request names.
func (ru *algorithmRun) validate(ctx context.Context) error {
	r := ru.r
	ids, err := parseMediaList(ru.req.MediaList)
	if err != nil {
		return failure(msgInvalidRequest, err)
	}
	ru.mediaIDs = ids

	alg, err := r.store.Algorithm(ctx, ru.req.AlgorithmID)
	if err != nil {
		return failure(msgInvalidRequest, err)
	}
	ru.algorithm = alg

	checks := []struct {
		name string
		fn   func() (bool, error)
	}{
		{"project exists", func() (bool, error) { return r.store.ProjectExists(ctx, ru.req.ProjectID) }},
		{"user is member", func() (bool, error) { return r.store.IsMember(ctx, ru.req.ProjectID, ru.req.UserID) }},
		{"algorithm in project", func() (bool, error) { return alg.ProjectID == ru.req.ProjectID, nil }},
		{"media exist", func() (bool, error) {
			missing, err := r.store.MissingMedia(ctx, ids)
			return len(missing) == 0, err
		}},
	}
	for _, c := range checks {
		ok, err := c.fn()
		if err != nil {
			return fmt.Errorf("failed to validate request (%s): %w", c.name, err)
		}
		if !ok {
			return failure(msgInvalidRequest, fmt.Errorf("check failed: %s", c.name))
		}
	}
	return nil
}

func (ru *algorithmRun) createSecret(ctx context.Context, name, registry, username, password string) error {
	secret, err := credentialSecret(name, registry, username, password)
	if err != nil {
		return err
	}
	_, err = ru.r.kube.CreateSecret(ctx, ru.r.namespace, secret)
	switch {
	case err == nil:
	case kube.IsAlreadyExists(err):
		ru.r.logger.Info("Registry credentials already exist", nil, map[string]interface{}{"secret": name})
	default:
		return fmt.Errorf("failed to create secret %s: %w", name, err)
	}
	ru.created[clusterObject{kindSecret, name}] = true
	return nil
}

// createJob submits job, retrying rejected creates.
func (ru *algorithmRun) createJob(ctx context.Context, job *kubebatch.Job) error {
	var lastErr error
	for attempt := 0; attempt < jobCreateAttempts; attempt++ {
		_, err := ru.r.kube.CreateJob(ctx, ru.r.namespace, job)
		if err == nil || kube.IsAlreadyExists(err) {
			ru.created[clusterObject{kindJob, job.Name}] = true
			ru.r.logger.Info("Created job", nil, map[string]interface{}{"job": job.Name})
			return nil
		}
		lastErr = err
		ru.r.logger.Warn("Failed to create job", err, map[string]interface{}{"job": job.Name, "attempt": attempt + 1})
	}
	return fmt.Errorf("failed to create job %s: %w", job.Name, lastErr)
}

// runPhase creates the phase objects and waits for the job to settle. A
// phase with a script slot but no script is skipped.
func (ru *algorithmRun) runPhase(ctx context.Context, phase Phase, script string, w workload) error {
	r := ru.r
	if w.scriptMap != "" && script == "" {
		r.logger.Debug("Skipping phase without script", nil, map[string]interface{}{"phase": string(phase)})
		return nil
	}
	ru.phase = phase
	start := time.Now()
	ctx, span := r.tracer.StartSpan(ctx, "jobs.phase")
	r.tracer.SetAttributes(span, map[string]interface{}{"phase": string(phase), "run_uid": ru.req.RunUID})
	defer span.End()
	defer r.observePhase(string(phase), start)

	err := ru.startAndWait(ctx, phase, script, w)
	if err != nil {
		r.tracer.RecordErrorOnSpan(span, err)
	}
	return err
}

func (ru *algorithmRun) startAndWait(ctx context.Context, phase Phase, script string, w workload) error {
	r := ru.r
	if w.scriptMap != "" {
		_, err := r.kube.CreateConfigMap(ctx, r.namespace, scriptConfigMap(w.scriptMap, w.scriptFile, script))
		if err != nil && !kube.IsAlreadyExists(err) {
			return fmt.Errorf("failed to create config map %s: %w", w.scriptMap, err)
		}
		ru.created[clusterObject{kindConfigMap, w.scriptMap}] = true
	}

	if err := ru.createJob(ctx, r.buildJob(ru.req.RunUID, w)); err != nil {
		return err
	}

	log, err := ru.openLog(phase)
	if err != nil {
		return err
	}
	defer log.Close()

	return ru.waitFor(ctx, w.name, log, phase == PhaseMain)
}

// openLog creates the phase log under the project directory.
func (ru *algorithmRun) openLog(phase Phase) (*os.File, error) {
	dir := filepath.Join(ru.r.cfg.MediaRoot, strconv.FormatInt(ru.req.ProjectID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	id, err := uuid.NewUUID()
	if err != nil {
		return nil, fmt.Errorf("failed to name log file: %w", err)
	}
	path := filepath.Join(dir, id.String()+".txt")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	ru.logs[phase] = path
	return f, nil
}

// deletionOrder lists every object a run may create, in the order cleanup
// removes them.
func deletionOrder(uid string) []clusterObject {
	return []clusterObject{
		{kindJob, mainJobName(uid)},
		{kindSecret, algoSecretName(uid)},
		{kindJob, teardownJobName(uid)},
		{kindJob, setupJobName(uid)},
		{kindSecret, marshalSecretName(uid)},
		{kindConfigMap, setupScriptName(uid)},
		{kindConfigMap, teardownScriptName(uid)},
	}
}

// cleanup runs on every exit path. Each step is best effort so that a
// failing step does not skip the ones after it.
func (ru *algorithmRun) cleanup(ctx context.Context) *models.AlgorithmResult {
	r := ru.r
	fields := map[string]interface{}{"run_uid": ru.req.RunUID}
	r.logger.Info("Starting algorithm cleanup", nil, fields)

	outcome := models.ResultFinished
	if ru.phase != PhaseFinished {
		outcome = models.ResultFailed
	}
	result := &models.AlgorithmResult{
		AlgorithmID: ru.req.AlgorithmID,
		UserID:      ru.req.UserID,
		Started:     ru.started,
		Stopped:     r.now(),
		Result:      outcome,
		Message:     ru.message,
		MediaIDs:    pq.Int64Array(ru.mediaIDs),
	}
	ru.guard("upload logs", func() {
		result.SetupLogKey = ru.uploadLog(ctx, PhaseSetup)
		result.MainLogKey = ru.uploadLog(ctx, PhaseMain)
		result.TeardownLogKey = ru.uploadLog(ctx, PhaseTeardown)
	})

	ru.guard("save result", func() {
		if ru.algorithm == nil {
			r.logger.Warn("Skipping algorithm result for unknown algorithm", nil, fields)
			return
		}
		if err := r.store.SaveResult(ctx, result); err != nil {
			r.logger.Error("Failed to write algorithm result", err, fields)
		}
	})

	if err := os.RemoveAll(ru.workDir); err != nil {
		r.logger.Warn("Failed to delete working directory", err, fields)
	}

	for _, obj := range deletionOrder(ru.req.RunUID) {
		if !ru.created[obj] {
			continue
		}
		ru.guard("delete "+obj.name, func() {
			if err := kube.IgnoreNotFound(ru.deleteObject(ctx, obj)); err != nil {
				r.logger.Warn("Failed to delete cluster object", err, map[string]interface{}{"name": obj.name})
			}
		})
	}

	ru.guard("broadcast", func() {
		var err error
		if outcome == models.ResultFailed {
			err = ru.rep.Failed(ctx, ru.message)
		} else {
			err = ru.rep.Finished(ctx, ru.message, nil)
		}
		if err != nil {
			r.logger.Warn("Failed to broadcast terminal state", err, fields)
		}
	})

	ru.guard("finish job", func() {
		if err := r.store.FinishJob(ctx, ru.req.JobID); err != nil {
			r.logger.Error("Failed to finish job", err, fields)
		}
	})
	r.observeRun("algorithm", outcome)
	r.logger.Info("Algorithm cleanup done", nil, map[string]interface{}{"run_uid": ru.req.RunUID, "result": outcome})
	return result
}

// guard runs one cleanup step. A panicking step is logged and the remaining
// steps still run.
func (ru *algorithmRun) guard(step string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			ru.r.logger.Error("Algorithm cleanup step panicked", fmt.Errorf("%v", p), map[string]interface{}{
				"run_uid": ru.req.RunUID,
				"step":    step,
			})
		}
	}()
	fn()
}

func (ru *algorithmRun) deleteObject(ctx context.Context, obj clusterObject) error {
	r := ru.r
	switch obj.kind {
	case kindJob:
		return r.kube.DeleteJob(ctx, r.namespace, obj.name)
	case kindSecret:
		return r.kube.DeleteSecret(ctx, r.namespace, obj.name)
	case kindConfigMap:
		return r.kube.DeleteConfigMap(ctx, r.namespace, obj.name)
	}
	return fmt.Errorf("unknown object kind %d", obj.kind)
}

// uploadLog stores a phase log as <project>/<file> and returns its key, or
// "" when the phase never opened one.
func (ru *algorithmRun) uploadLog(ctx context.Context, phase Phase) string {
	path, ok := ru.logs[phase]
	if !ok {
		return ""
	}
	key := strconv.FormatInt(ru.req.ProjectID, 10) + "/" + filepath.Base(path)
	if _, err := ru.r.objects.PutFile(ctx, key, path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ru.r.logger.Warn("Failed to upload phase log", err, map[string]interface{}{"phase": string(phase)})
		}
		return ""
	}
	return key
}
