package assemble

import (
	"path/filepath"

	"github.com/KaramelBytes/audiobids/internal/subject"
)

// Layout owns every path of the output tree below the results directory.
type Layout struct {
	Results string
}

// Originals is where the generated sidecars live before they are installed.
func (l Layout) Originals() string { return filepath.Join(l.Results, "BIDS_sidecars_originals") }

// Root is the dataset root.
func (l Layout) Root() string { return filepath.Join(l.Results, "BIDS_data") }

// LockPath is the file locked for the duration of a run.
func (l Layout) LockPath() string { return filepath.Join(l.Results, ".audiobids.lock") }

// SubjectDir is sub-<ID>.
func (l Layout) SubjectDir(canonical string) string {
	return filepath.Join(l.Root(), subject.Label(canonical))
}

// SessionDir is sub-<ID>/ses-<NN>.
func (l Layout) SessionDir(canonical, sessionID string) string {
	return filepath.Join(l.SubjectDir(canonical), "ses-"+sessionID)
}

// TableName is sub-<ID>_ses-<NN>_task-<T>_run-<RR>_beh.tsv.
func TableName(canonical, sessionID, task, run string) string {
	return subject.Label(canonical) + "_ses-" + sessionID + "_task-" + task + "_run-" + run + "_beh.tsv"
}

// TablePath places TableName in its session directory.
func (l Layout) TablePath(canonical, sessionID, task, run string) string {
	return filepath.Join(l.SessionDir(canonical, sessionID), TableName(canonical, sessionID, task, run))
}

// SessionsPath is the per-subject sessions table.
func (l Layout) SessionsPath(canonical string) string {
	return filepath.Join(l.SubjectDir(canonical), subject.Label(canonical)+"_sessions.tsv")
}

// ConcordancePath is the dataset-level identifier table.
func (l Layout) ConcordancePath() string {
	return filepath.Join(l.Root(), "subject_id_concordance.tsv")
}
