package rosetta

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"
)

const (
	StructDBFile      = "struct.db3"
	extractionLogFile = "structure_output.txt"
)

var trajectorySteps = []string{"backrub", "wt", "mut"}

var extractedPDBPattern = regexp.MustCompile(`^(\d+)_0001\.pdb$`)

// Extractor dumps the structures stored in struct.db3 files to PDB files
// with score_jd2 and names them after the trajectory step they came from.
type Extractor struct {
	ScoreJD2Path string
	Stride       int
	Runner       Runner
}

// Extract runs score_jd2 in the directory of structDB and returns its exit
// code. The log is removed when score_jd2 succeeds.
func (e *Extractor) Extract(ctx context.Context, structDB string) (int, error) {
	dir := filepath.Dir(structDB)
	cmd := Command{
		Path: e.ScoreJD2Path,
		Args: []string{
			"-inout:dbms:database_name", filepath.Base(structDB),
			"-in:use_database",
			"-out:pdb",
		},
		Dir:     dir,
		LogPath: filepath.Join(dir, extractionLogFile),
	}

	code, err := e.Runner.Run(ctx, cmd)
	if err != nil {
		return code, err
	}
	if code == 0 {
		if err := os.Remove(cmd.LogPath); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("Could not remove %s: %v", cmd.LogPath, err)
		}
	}

	if _, err := RenameStructures(dir, e.Stride); err != nil {
		return code, err
	}
	return code, nil
}

// RenameStructures renames score_jd2 output ("<id>_0001.pdb") in dir to the
// trajectory naming scheme and returns how many files were renamed.
func RenameStructures(dir string, stride int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	renamed := 0
	for _, entry := range entries {
		m := extractedPDBPattern.FindStringSubmatch(entry.Name())
		if m == nil || entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil || id < 1 {
			continue
		}
		src := filepath.Join(dir, entry.Name())
		dest := filepath.Join(dir, StructureName(id, stride))
		if err := os.Rename(src, dest); err != nil {
			return renamed, fmt.Errorf("rename %s: %w", src, err)
		}
		renamed++
	}
	return renamed, nil
}

// StructureName maps a struct.db3 structure id to "<step>_<NNNNN>.pdb".
// Structures cycle through backrub, wild type and mutant for every saved
// trajectory checkpoint, stride backrub steps apart.
func StructureName(structID, stride int) string {
	n := len(trajectorySteps)
	step := trajectorySteps[(structID-1)%n]
	return fmt.Sprintf("%s_%05d.pdb", step, ((structID-1)/n+1)*stride)
}
