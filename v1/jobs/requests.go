package jobs

import (
	"fmt"
	"strconv"
	"strings"
)

// AlgorithmRequest is the body of an algorithm "start" command.
type AlgorithmRequest struct {
	JobID       int64  `json:"job_id"`
	RunUID      string `json:"run_uid"`
	GroupID     string `json:"group_id"`
	ProjectID   int64  `json:"project_id"`
	UserID      int64  `json:"user_id"`
	AlgorithmID int64  `json:"algorithm_id"`
	// MediaList is a comma separated list of media ids.
	MediaList   string `json:"media_list"`
	SectionList string `json:"section_list"`
	// Trace is an optional propagated trace context.
	Trace map[string]string `json:"trace,omitempty"`
}

// PackageRequest is the body of a packager "start" command.
type PackageRequest struct {
	JobID        int64  `json:"job_id"`
	RunUID       string `json:"run_uid"`
	GroupID      string `json:"group_id"`
	ProjectID    int64  `json:"project_id"`
	UserID       int64  `json:"user_id"`
	MediaList    string `json:"media_list"`
	PackageName  string `json:"package_name"`
	PackageDesc  string `json:"package_desc"`
	UseOriginals bool   `json:"use_originals"`
	// Annotations exports per-media annotation JSON instead of media files.
	Annotations bool              `json:"annotations"`
	Trace       map[string]string `json:"trace,omitempty"`
}

func parseMediaList(list string) ([]int64, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid media id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
