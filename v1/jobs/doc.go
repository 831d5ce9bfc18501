// Package jobs runs algorithm workloads on the cluster and builds download
// packages.
//
// An algorithm run moves through PENDING, SETUP, MAIN and TEARDOWN and ends
// FINISHED or FAILED. Each phase is a Kubernetes Job that is polled until it
// settles; the log of its pod is streamed to a file under the project
// directory, and progress statements printed by the main container
// (TATOR_PROGRESS:<percent>:<message>) are broadcast to watchers. Whatever
// happens, cleanup stores an AlgorithmResult, deletes the cluster objects
// the run created, broadcasts the terminal state and releases the job row.
//
// Runs are started by a Dispatcher listening on the "algorithm" and
// "packager" channels. Stopping is cooperative: the run checks its Stopper
// at phase boundaries and while waiting.
//
//	d := jobs.NewDispatcher(runner, pubsub, log)
//	go d.Run(ctx, pubsub.Channel())
package jobs
