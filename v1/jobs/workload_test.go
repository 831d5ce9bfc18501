package jobs

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kubecore "k8s.io/api/core/v1"

	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
)

func TestCredentialSecret(t *testing.T) {
	secret, err := credentialSecret("marshal-creds-uid", "registry.local", "user", "pass")
	require.NoError(t, err)
	assert.Equal(t, kubecore.SecretTypeDockerConfigJson, secret.Type)

	var cfg struct {
		Auths map[string]struct {
			Auth string `json:"auth"`
		} `json:"auths"`
	}
	require.NoError(t, json.Unmarshal(secret.Data[kubecore.DockerConfigJsonKey], &cfg))
	auth, err := base64.StdEncoding.DecodeString(cfg.Auths["registry.local"].Auth)
	require.NoError(t, err)
	assert.Equal(t, "user:pass", string(auth))
}

func TestWithDefaultTag(t *testing.T) {
	tests := map[string]string{
		"detector":                          "detector:latest",
		"registry.local:5000/detector":      "registry.local:5000/detector:latest",
		"registry.local:5000/detector:v2":   "registry.local:5000/detector:v2",
		"detector@sha256:abc":               "detector@sha256:abc",
		"registry.local/tator_algo_marshal": "registry.local/tator_algo_marshal:latest",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, withDefaultTag(in))
		})
	}
}

func TestBuildJob(t *testing.T) {
	r := NewRunner(Config{MainHost: "example.com"}, nil, nil, nil, nil, logger.NewNop())
	env := r.runEnv(algorithmRequest(), "token", []byte(`{"a":1}`))

	t.Run("setup job mounts its script", func(t *testing.T) {
		job := r.buildJob("uid", workload{
			name:       setupJobName("uid"),
			app:        appSetup,
			container:  marshalContainer,
			image:      "registry.local/tator_algo_marshal:latest",
			command:    []string{"python", "/setup.py"},
			secret:     marshalSecretName("uid"),
			env:        env,
			scriptMap:  setupScriptName("uid"),
			scriptFile: setupFile,
		})

		assert.Equal(t, "setup-uid", job.Name)
		assert.Equal(t, map[string]string{"app": "algo-setup", "job": "setup-uid"}, job.Spec.Template.Labels)
		assert.Equal(t, int32(1), *job.Spec.Completions)

		spec := job.Spec.Template.Spec
		assert.Equal(t, kubecore.RestartPolicyNever, spec.RestartPolicy)
		assert.Equal(t, map[string]string{"cpuWorker": "yes"}, spec.NodeSelector)
		assert.Equal(t, []kubecore.LocalObjectReference{{Name: "marshal-creds-uid"}}, spec.ImagePullSecrets)
		require.Len(t, spec.Volumes, 2)
		assert.Equal(t, DefaultWorkClaim, spec.Volumes[0].PersistentVolumeClaim.ClaimName)
		assert.Equal(t, "setup-script-uid", spec.Volumes[1].ConfigMap.Name)
		assert.Equal(t, int32(0o777), *spec.Volumes[1].ConfigMap.DefaultMode)

		c := spec.Containers[0]
		assert.Equal(t, "marshal-container", c.Name)
		assert.Equal(t, kubecore.PullAlways, c.ImagePullPolicy)
		assert.Equal(t, []kubecore.VolumeMount{
			{Name: "work", MountPath: "/work", SubPath: "uid"},
			{Name: "script", MountPath: "/setup.py", SubPath: "setup.py"},
		}, c.VolumeMounts)
	})

	t.Run("gpu algorithms get a gpu node", func(t *testing.T) {
		job := r.buildJob("uid", workload{name: mainJobName("uid"), app: appMain, container: algorithmContainer, image: "detector:latest", gpu: true, env: env})

		spec := job.Spec.Template.Spec
		assert.Equal(t, map[string]string{"gpuWorker": "yes"}, spec.NodeSelector)
		limit := spec.Containers[0].Resources.Limits["nvidia.com/gpu"]
		assert.Equal(t, int64(1), limit.Value())
		assert.Empty(t, spec.ImagePullSecrets)
	})

	t.Run("environment", func(t *testing.T) {
		byName := map[string]string{}
		for _, e := range env {
			byName[e.Name] = e.Value
		}
		assert.Equal(t, map[string]string{
			"TATOR_WORK_DIR":      "/work",
			"TATOR_API_SERVICE":   "https://example.com/rest/",
			"TATOR_MEDIA_IDS":     "1,2",
			"TATOR_PROJECT_ID":    "7",
			"TATOR_AUTH_TOKEN":    "token",
			"TATOR_PIPELINE_ARGS": `{"a":1}`,
		}, byName)

		assert.Len(t, r.runEnv(algorithmRequest(), "token", nil), 5)
		assert.Len(t, r.runEnv(algorithmRequest(), "token", []byte("null")), 5)
	})
}

func TestParseMediaList(t *testing.T) {
	ids, err := parseMediaList(" 1, 2 ,3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = parseMediaList("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = parseMediaList("1,x")
	assert.Error(t, err)
}
