package processor

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/rosetta"
)

// FinishedJob is a job directory (one mutant) and those of its structure
// directories whose runs completed.
type FinishedJob struct {
	Dir        string
	StructDirs []string
}

// FindStructDBs returns every struct.db3 file under root, sorted.
func FindStructDBs(root string) ([]string, error) {
	var dbs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logrus.Errorf("Error accessing path %s: %v", path, err)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return err
		}
		if d.Type().IsRegular() && d.Name() == rosetta.StructDBFile {
			dbs = append(dbs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dbs)
	return dbs, nil
}

// FindFinishedJobs looks one level below outputFolder for job directories
// and, inside each, for structure directories holding a successful run.
// Jobs are sorted by directory; jobs without finished structures are kept
// with an empty list.
func FindFinishedJobs(outputFolder string) ([]FinishedJob, error) {
	jobDirs, err := subdirs(outputFolder)
	if err != nil {
		return nil, err
	}

	jobs := make([]FinishedJob, 0, len(jobDirs))
	for _, jobDir := range jobDirs {
		structDirs, err := subdirs(jobDir)
		if err != nil {
			logrus.Errorf("Error reading job directory %s: %v", jobDir, err)
			continue
		}
		finished := []string{}
		for _, dir := range structDirs {
			if rosetta.OutputSucceeded(dir) {
				finished = append(finished, dir)
			} else {
				logrus.Debugf("Skipping unfinished structure directory: %s", dir)
			}
		}
		jobs = append(jobs, FinishedJob{Dir: jobDir, StructDirs: finished})
	}
	return jobs, nil
}

// subdirs returns the absolute paths of the directories directly in dir, sorted.
func subdirs(dir string) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(abs, entry.Name()))
		}
	}
	return dirs, nil
}
