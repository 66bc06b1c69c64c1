package rosetta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-yaml"
)

const (
	ChainsToMoveFile = "chains_to_move.txt"
	ManifestFile     = "job.yaml"
)

var (
	// ErrNoPDB is returned when a case directory holds no .pdb file.
	ErrNoPDB = errors.New("no .pdb file in case directory")
	// ErrNoChains is returned when chains_to_move.txt is missing or empty.
	ErrNoChains = errors.New("no chains to move")
)

var mutationPattern = regexp.MustCompile(`^([A-Za-z])(-?\d+)([A-Za-z]?)$`)

// Mutation identifies the residue to mutate by PDB chain, residue number and
// insertion code.
type Mutation struct {
	Chain     string
	ResNum    int
	Insertion string
}

// ParseMutation parses "<chain><resnum>[icode]", e.g. "B49" or "A100C".
func ParseMutation(s string) (Mutation, error) {
	m := mutationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Mutation{}, fmt.Errorf("invalid mutation %q: want <chain><resnum>[icode]", s)
	}
	resnum, err := strconv.Atoi(m[2])
	if err != nil {
		return Mutation{}, fmt.Errorf("invalid residue number in %q: %w", s, err)
	}
	return Mutation{Chain: m[1], ResNum: resnum, Insertion: m[3]}, nil
}

func (m Mutation) String() string {
	return fmt.Sprintf("%s%d%s", m.Chain, m.ResNum, m.Insertion)
}

// Case is one input complex: a directory holding a PDB file and the chains
// that move apart when computing binding energies.
type Case struct {
	Name         string
	Path         string
	InputPDB     string
	ChainsToMove string
}

// DiscoverCases loads every case directory directly under inputsDir.
func DiscoverCases(inputsDir string) ([]Case, error) {
	entries, err := os.ReadDir(inputsDir)
	if err != nil {
		return nil, fmt.Errorf("read inputs dir: %w", err)
	}

	var cases []Case
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		c, err := loadCase(filepath.Join(inputsDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func loadCase(casePath string) (Case, error) {
	name := filepath.Base(casePath)
	pdbs, err := filepath.Glob(filepath.Join(casePath, "*.pdb"))
	if err != nil {
		return Case{}, err
	}
	if len(pdbs) == 0 {
		return Case{}, fmt.Errorf("case %s: %w", name, ErrNoPDB)
	}
	sort.Strings(pdbs)

	data, err := os.ReadFile(filepath.Join(casePath, ChainsToMoveFile))
	if err != nil {
		return Case{}, fmt.Errorf("case %s: %w: %v", name, ErrNoChains, err)
	}
	chains := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	if chains == "" {
		return Case{}, fmt.Errorf("case %s: %w", name, ErrNoChains)
	}

	return Case{Name: name, Path: casePath, InputPDB: pdbs[0], ChainsToMove: chains}, nil
}

// Params holds the protocol settings shared by every job of a run.
type Params struct {
	RosettaScriptsPath        string
	ProtocolPath              string
	OutputDir                 string
	NumberBackrubTrials       int
	MaxMinimizationIter       int
	AbsScoreConvergenceThresh float64
	BackrubTrajectoryStride   int
}

// FlexDDGJob is one rosetta_scripts invocation: one case, one mutant amino
// acid, one structure index.
type FlexDDGJob struct {
	Name         string
	Case         Case
	Mutation     Mutation
	MutantAA     string
	StructIndex  int
	OutputDir    string
	ChainsToMove string
}

// SaturationJobs builds one job per structure index, case and mutant amino
// acid, in that nesting order.
func SaturationJobs(cases []Case, mutation Mutation, mutantAAs string, nstruct int, outputRoot string) []*FlexDDGJob {
	var jobs []*FlexDDGJob
	for i := 1; i <= nstruct; i++ {
		for _, c := range cases {
			name := c.Name + "_" + mutation.String()
			for _, aa := range mutantAAs {
				jobs = append(jobs, &FlexDDGJob{
					Name:         name,
					Case:         c,
					Mutation:     mutation,
					MutantAA:     string(aa),
					StructIndex:  i,
					OutputDir:    filepath.Join(outputRoot, name+"_"+string(aa), fmt.Sprintf("%02d", i)),
					ChainsToMove: c.ChainsToMove,
				})
			}
		}
	}
	return jobs
}

// Key identifies the job across runs.
func (j *FlexDDGJob) Key() string {
	return fmt.Sprintf("%s_%s/%02d", j.Name, j.MutantAA, j.StructIndex)
}

func (j *FlexDDGJob) ResfilePath() string {
	return filepath.Join(j.OutputDir, fmt.Sprintf("mutate_%s_to_%s.resfile", j.Mutation, j.MutantAA))
}

func (j *FlexDDGJob) LogPath() string {
	return filepath.Join(j.OutputDir, OutputLogFile)
}

// Resfile returns the packer resfile that restricts the mutated position to
// the mutant amino acid.
func (j *FlexDDGJob) Resfile() string {
	return fmt.Sprintf("NATRO\nstart\n%d%s %s PIKAA %s\n",
		j.Mutation.ResNum, j.Mutation.Insertion, j.Mutation.Chain, j.MutantAA)
}

// Args returns the rosetta_scripts argument vector, without the binary.
func (j *FlexDDGJob) Args(p Params) []string {
	return []string{
		"-s", j.Case.InputPDB,
		"-parser:protocol", p.ProtocolPath,
		"-parser:script_vars",
		"chainstomove=" + j.ChainsToMove,
		"mutate_resfile_relpath=" + j.ResfilePath(),
		fmt.Sprintf("number_backrub_trials=%d", p.NumberBackrubTrials),
		fmt.Sprintf("max_minimization_iter=%d", p.MaxMinimizationIter),
		fmt.Sprintf("abs_score_convergence_thresh=%.1f", p.AbsScoreConvergenceThresh),
		fmt.Sprintf("backrub_trajectory_stride=%d", p.BackrubTrajectoryStride),
		"-restore_talaris_behavior",
		"-in:file:fullatom",
		"-ignore_unrecognized_res",
		"-ignore_zero_occupancy", "false",
		"-ex1",
		"-ex2",
	}
}

// Fingerprint digests everything that determines the job's output, so a
// journal can tell a rerun with changed parameters from a repeat.
func (j *FlexDDGJob) Fingerprint(p Params) string {
	h := xxhash.New()
	_, _ = h.WriteString(p.RosettaScriptsPath)
	for _, arg := range j.Args(p) {
		_, _ = h.WriteString("\x00" + arg)
	}
	_, _ = h.WriteString("\x00" + j.Resfile())
	return fmt.Sprintf("%016x", h.Sum64())
}

// Command returns the invocation for this job.
func (j *FlexDDGJob) Command(p Params) Command {
	return Command{
		Path:    p.RosettaScriptsPath,
		Args:    j.Args(p),
		Dir:     j.OutputDir,
		LogPath: j.LogPath(),
	}
}

// JobManifest is written next to each job's log to record how it was run.
type JobManifest struct {
	Case         string   `yaml:"case"`
	InputPDB     string   `yaml:"input_pdb"`
	Mutation     string   `yaml:"mutation"`
	MutantAA     string   `yaml:"mutant_aa"`
	StructIndex  int      `yaml:"struct_index"`
	ChainsToMove string   `yaml:"chains_to_move"`
	Binary       string   `yaml:"binary"`
	Args         []string `yaml:"args"`
	Fingerprint  string   `yaml:"fingerprint"`
}

func (j *FlexDDGJob) Manifest(p Params) JobManifest {
	return JobManifest{
		Case:         j.Case.Name,
		InputPDB:     j.Case.InputPDB,
		Mutation:     j.Mutation.String(),
		MutantAA:     j.MutantAA,
		StructIndex:  j.StructIndex,
		ChainsToMove: j.ChainsToMove,
		Binary:       p.RosettaScriptsPath,
		Args:         j.Args(p),
		Fingerprint:  j.Fingerprint(p),
	}
}

// Prepare creates the output directory and writes the resfile and manifest.
func (j *FlexDDGJob) Prepare(p Params) error {
	if err := os.MkdirAll(j.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(j.ResfilePath(), []byte(j.Resfile()), 0644); err != nil {
		return fmt.Errorf("write resfile: %w", err)
	}
	data, err := yaml.Marshal(j.Manifest(p))
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(j.OutputDir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a job.yaml written by Prepare.
func ReadManifest(path string) (*JobManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m JobManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}
