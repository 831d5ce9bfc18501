// Package kube wraps client-go with the handful of Job, Pod, Secret and
// ConfigMap calls the job runner makes, plus helpers that read job and pod
// status the way the runner's polling loop needs them.
//
// Deletes treat a missing object as success when passed through
// IgnoreNotFound. The mock subpackage provides a hand-written Client whose
// behaviour is set per test through its Impl fields.
package kube
