package rosetta

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

const (
	OutputLogFile = "rosetta.out"
	ScoreDBFile   = "ddG.db3"

	jobDistributorPrefix = "protocols.jd2.JobDistributor"
	successMarker        = "reported success in"
	finishedMarker       = "no more batches to process"
)

// OutputSucceeded reports whether dir holds a finished flex ddG run: the
// score database exists and the log shows both the success and the
// end-of-batches job distributor messages.
func OutputSucceeded(dir string) bool {
	if !isFile(filepath.Join(dir, ScoreDBFile)) {
		return false
	}
	f, err := os.Open(filepath.Join(dir, OutputLogFile))
	if err != nil {
		return false
	}
	defer f.Close()

	var success, finished bool
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, jobDistributorPrefix) {
			continue
		}
		if strings.Contains(line, successMarker) {
			success = true
		}
		if strings.Contains(line, finishedMarker) {
			finished = true
		}
	}
	return success && finished
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
