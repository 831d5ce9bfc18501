package jobs

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/progress"
)

const msgPackageReady = "Package ready!"

var errDownloadAborted = errors.New("Download was aborted!")

// RunPackager zips the requested media, or their annotations, into one
// archive and stores it as a Package. Like RunAlgorithm it reports every
// outcome through progress and always releases the job record.
func (r *Runner) RunPackager(ctx context.Context, stop Stopper, req PackageRequest) (pkg *models.Package) {
	ctx = r.traced(ctx, req.Trace)
	rep := r.reporters(progress.Header{
		Prefix:    progress.PrefixDownload,
		ProjectID: req.ProjectID,
		GID:       req.GroupID,
		UID:       req.RunUID,
		Name:      req.PackageName,
		User:      strconv.FormatInt(req.UserID, 10),
	})
	fields := map[string]interface{}{"run_uid": req.RunUID, "package": req.PackageName}
	cleanupCtx := context.WithoutCancel(ctx)

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("packager panicked: %v", p)
		}
		result := "success"
		if err != nil {
			result = "failure"
			r.logger.Error("Exception creating package", err, fields)
			msg := "Failed!"
			if stop.Stopped() {
				msg = "Aborted!"
			}
			if rerr := rep.Failed(cleanupCtx, msg); rerr != nil {
				r.logger.Warn("Failed to broadcast terminal state", rerr, fields)
			}
			pkg = nil
		} else if rerr := rep.Finished(cleanupCtx, msgPackageReady, nil); rerr != nil {
			r.logger.Warn("Failed to broadcast terminal state", rerr, fields)
		}
		if ferr := r.store.FinishJob(cleanupCtx, req.JobID); ferr != nil {
			r.logger.Error("Failed to finish job", ferr, fields)
		}
		r.observeRun("packager", result)
	}()

	if qerr := rep.Queued(ctx, "Preparing..."); qerr != nil {
		r.logger.Warn("Failed to broadcast queued state", qerr, fields)
	}
	pkg, err = r.buildPackage(ctx, stop, rep, req)
	if err == nil {
		r.logger.Info("Packaging job complete", nil, fields)
	}
	return pkg
}

func (r *Runner) buildPackage(ctx context.Context, stop Stopper, rep Reporter, req PackageRequest) (*models.Package, error) {
	ctx, span := r.tracer.StartSpan(ctx, "jobs.package")
	defer span.End()

	if err := r.store.MarkRunning(ctx, req.JobID, req.RunUID); err != nil {
		return nil, fmt.Errorf("failed to mark job %d running: %w", req.JobID, err)
	}
	ids, err := parseMediaList(req.MediaList)
	if err != nil {
		return nil, err
	}
	media, err := r.store.Media(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load media: %w", err)
	}

	tmp, err := os.CreateTemp("", "package-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := r.writeArchive(ctx, stop, rep, tmp, media, req); err != nil {
		r.tracer.RecordErrorOnSpan(span, err)
		return nil, err
	}

	size, err := tmp.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to size archive: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind archive: %w", err)
	}
	key := path.Join(strconv.FormatInt(req.ProjectID, 10), req.RunUID+".zip")
	if _, err := r.objects.Put(ctx, key, tmp, size); err != nil {
		return nil, err
	}

	pkg := &models.Package{
		ProjectID:    req.ProjectID,
		CreatorID:    req.UserID,
		Name:         req.PackageName,
		Description:  req.PackageDesc,
		UseOriginals: req.UseOriginals,
		ObjectKey:    key,
		Size:         size,
		Created:      r.now(),
	}
	if err := r.store.SavePackage(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// writeArchive writes one entry per media without compression.
func (r *Runner) writeArchive(ctx context.Context, stop Stopper, rep Reporter, w io.Writer, media []models.Media, req PackageRequest) error {
	zw := zip.NewWriter(w)
	names := archiveNames{}
	for idx, m := range media {
		if stop.Stopped() {
			return errDownloadAborted
		}
		base, ext := splitExt(m.Name)
		base = names.unique(base)

		var err error
		if req.Annotations {
			err = r.writeAnnotations(ctx, zw, base, m)
		} else {
			err = r.writeMedia(ctx, zw, base+ext, m, req.UseOriginals)
		}
		if err != nil {
			return err
		}
		pct := 100 * idx / len(media)
		if perr := rep.Progress(ctx, "Creating zip file...", pct); perr != nil {
			r.logger.Warn("Failed to broadcast progress", perr, map[string]interface{}{"run_uid": req.RunUID})
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func (r *Runner) writeMedia(ctx context.Context, zw *zip.Writer, name string, m models.Media, originals bool) error {
	key := m.ObjectKey
	if originals && m.OriginalKey != nil && *m.OriginalKey != "" {
		key = *m.OriginalKey
	}
	src, err := r.objects.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to open media %d: %w", m.ID, err)
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy media %d: %w", m.ID, err)
	}
	return nil
}

// writeAnnotations exports the localizations and states of m as indented
// JSON documents.
func (r *Runner) writeAnnotations(ctx context.Context, zw *zip.Writer, base string, m models.Media) error {
	locs, states, err := r.store.MediaAnnotations(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("failed to load annotations of media %d: %w", m.ID, err)
	}
	if locs == nil {
		locs = []models.Localization{}
	}
	if states == nil {
		states = []models.State{}
	}
	docs := []struct {
		name string
		v    interface{}
	}{
		{base + "__localizations.json", locs},
		{base + "__states.json", states},
	}
	for _, d := range docs {
		data, err := json.MarshalIndent(d.v, "", "    ")
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", d.name, err)
		}
		dst, err := zw.CreateHeader(&zip.FileHeader{Name: d.name, Method: zip.Store})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", d.name, err)
		}
		if _, err := dst.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", d.name, err)
		}
	}
	return nil
}

// archiveNames hands out base names that are unique within one archive.
// Repeats get -1, -2, ... and every name handed out is reserved, so a
// suffixed name never collides with a later literal one.
type archiveNames map[string]int

func (n archiveNames) unique(base string) string {
	if _, taken := n[base]; !taken {
		n[base] = 0
		return base
	}
	for {
		n[base]++
		candidate := base + "-" + strconv.Itoa(n[base])
		if _, taken := n[candidate]; !taken {
			n[candidate] = 0
			return candidate
		}
	}
}

func splitExt(name string) (string, string) {
	ext := path.Ext(name)
	if ext == name || strings.HasSuffix(name, "/") {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
