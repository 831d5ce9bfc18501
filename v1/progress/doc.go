// Package progress broadcasts the lifecycle of long running work (algorithm
// runs, uploads, downloads) to every client watching a project.
//
// Each message is published on <prefix>_prog_<project> and mirrored in the
// hash <prefix>_latest_<project> under its uid, so a consumer that joins late
// can replay the current state before following the live channel. Work is
// grouped by gid: the hashes <gid>:started and <gid>:done track membership,
// and a summary with num_procs and num_complete is published after each
// transition. When every started uid is done the group's hashes and its
// mirrored summary are removed.
//
//	p := broadcaster.Producer(progress.Header{
//		Prefix: progress.PrefixAlgorithm, ProjectID: 1, GID: gid, UID: uid, Name: "detector",
//	})
//	_ = p.Queued(ctx, "Queued...")
//	_ = p.Progress(ctx, "Executing...", 15)
//	_ = p.Finished(ctx, "Algorithm complete!", nil)
package progress
