package jobs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	marshalImage = "tator_algo_marshal:latest"
	workMount    = "/work"

	appSetup    = "algo-setup"
	appMain     = "user-algorithm"
	appTeardown = "algo-teardown"

	setupFile    = "setup.py"
	teardownFile = "teardown.py"

	marshalContainer   = "marshal-container"
	algorithmContainer = "algorithm-container"
)

// Names of the cluster objects of one run.
func marshalSecretName(uid string) string { return "marshal-creds-" + uid }
func algoSecretName(uid string) string    { return "user-algo-creds-" + uid }
func setupJobName(uid string) string      { return "setup-" + uid }
func mainJobName(uid string) string       { return "user-algo-" + uid }
func teardownJobName(uid string) string   { return "teardown-" + uid }
func setupScriptName(uid string) string   { return "setup-script-" + uid }
func teardownScriptName(uid string) string {
	return "teardown-script-" + uid
}

// dockerConfig renders a kubernetes.io/dockerconfigjson payload.
func dockerConfig(registry, username, password string) ([]byte, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return json.Marshal(map[string]interface{}{
		"auths": map[string]interface{}{
			registry: map[string]string{"auth": auth},
		},
	})
}

func credentialSecret(name, registry, username, password string) (*kubecore.Secret, error) {
	data, err := dockerConfig(registry, username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry credentials: %w", err)
	}
	return &kubecore.Secret{
		ObjectMeta: kubeapimeta.ObjectMeta{Name: name},
		Type:       kubecore.SecretTypeDockerConfigJson,
		Data:       map[string][]byte{kubecore.DockerConfigJsonKey: data},
	}, nil
}

func scriptConfigMap(name, file, script string) *kubecore.ConfigMap {
	return &kubecore.ConfigMap{
		ObjectMeta: kubeapimeta.ObjectMeta{Name: name},
		Data:       map[string]string{file: script},
	}
}

// withDefaultTag appends :latest to an image reference without tag or
// digest. A port in the registry host is not a tag.
func withDefaultTag(image string) string {
	last := image[strings.LastIndex(image, "/")+1:]
	if strings.ContainsAny(last, ":@") {
		return image
	}
	return image + ":latest"
}

// workload describes one phase job.
type workload struct {
	name      string
	app       string
	container string
	image     string
	command   []string
	secret    string
	gpu       bool
	env       []kubecore.EnvVar

	// script, when set, is a ConfigMap mounted as a single file.
	scriptMap  string
	scriptFile string
}

// runEnv is the environment every phase container receives.
func (r *Runner) runEnv(req AlgorithmRequest, token string, args []byte) []kubecore.EnvVar {
	env := []kubecore.EnvVar{
		{Name: "TATOR_WORK_DIR", Value: workMount},
		{Name: "TATOR_API_SERVICE", Value: "https://" + r.cfg.MainHost + "/rest/"},
		{Name: "TATOR_MEDIA_IDS", Value: req.MediaList},
		{Name: "TATOR_PROJECT_ID", Value: strconv.FormatInt(req.ProjectID, 10)},
		{Name: "TATOR_AUTH_TOKEN", Value: token},
	}
	if len(args) > 0 && string(args) != "null" {
		env = append(env, kubecore.EnvVar{Name: "TATOR_PIPELINE_ARGS", Value: string(args)})
	}
	return env
}

func (r *Runner) buildJob(uid string, w workload) *kubebatch.Job {
	completions := int32(1)
	labels := map[string]string{"app": w.app, "job": w.name}

	container := kubecore.Container{
		Name:                     w.container,
		Image:                    w.image,
		ImagePullPolicy:          kubecore.PullAlways,
		Command:                  w.command,
		Env:                      w.env,
		TerminationMessagePolicy: kubecore.TerminationMessageFallbackToLogsOnError,
		VolumeMounts: []kubecore.VolumeMount{{
			Name:      "work",
			MountPath: workMount,
			SubPath:   uid,
		}},
	}
	volumes := []kubecore.Volume{{
		Name: "work",
		VolumeSource: kubecore.VolumeSource{
			PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{ClaimName: r.cfg.WorkClaim},
		},
	}}
	if w.scriptMap != "" {
		mode := int32(0o777)
		volumes = append(volumes, kubecore.Volume{
			Name: "script",
			VolumeSource: kubecore.VolumeSource{
				ConfigMap: &kubecore.ConfigMapVolumeSource{
					LocalObjectReference: kubecore.LocalObjectReference{Name: w.scriptMap},
					DefaultMode:          &mode,
				},
			},
		})
		container.VolumeMounts = append(container.VolumeMounts, kubecore.VolumeMount{
			Name:      "script",
			MountPath: "/" + w.scriptFile,
			SubPath:   w.scriptFile,
		})
	}

	selector := map[string]string{"cpuWorker": "yes"}
	if w.gpu {
		selector = map[string]string{"gpuWorker": "yes"}
		container.Resources.Limits = kubecore.ResourceList{
			"nvidia.com/gpu": resource.MustParse("1"),
		}
	}

	var pullSecrets []kubecore.LocalObjectReference
	if w.secret != "" {
		pullSecrets = []kubecore.LocalObjectReference{{Name: w.secret}}
	}

	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{Name: w.name, Labels: labels},
		Spec: kubebatch.JobSpec{
			Completions: &completions,
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
				Spec: kubecore.PodSpec{
					RestartPolicy:    kubecore.RestartPolicyNever,
					Containers:       []kubecore.Container{container},
					Volumes:          volumes,
					ImagePullSecrets: pullSecrets,
					NodeSelector:     selector,
				},
			},
		},
	}
}
