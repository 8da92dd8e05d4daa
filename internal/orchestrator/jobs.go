package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrNoJobs means the uploads folder holds no archives.
var ErrNoJobs = errors.New("no archives to upload")

// Job is one archive waiting to be uploaded.
type Job struct {
	Name string
	Path string
}

// DiscoverJobs lists the .zip and .cbz files directly inside dir, in name order.
func DiscoverJobs(dir string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: folder %s does not exist", ErrNoJobs, dir)
		}
		return nil, fmt.Errorf("error reading uploads folder %s: %w", dir, err)
	}

	var jobs []Job
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".zip", ".cbz":
			jobs = append(jobs, Job{Name: e.Name(), Path: filepath.Join(dir, e.Name())})
		default:
			log.Debugf("Skipping %s, not a zip or cbz archive", e.Name())
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoJobs, dir)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs, nil
}
