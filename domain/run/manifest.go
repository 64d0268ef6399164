package run

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gopower/domain/core"
	"gopower/domain/trial"
)

// Manifest is the truth source for one simulation run: everything needed
// to replay it bit-for-bit. Echoed alongside every summary so results stay
// attributable to the inputs that produced them.
type Manifest struct {
	RunID       core.RunID         `json:"run_id"`
	Design      trial.Design       `json:"design"`
	Schedule    trial.LookSchedule `json:"schedule,omitempty"`
	Repetitions int                `json:"repetitions"`
	Alpha       float64            `json:"alpha"`
	ConfLevel   float64            `json:"conf_level"`
	BaseSeed    int64              `json:"base_seed"`
	CodeVersion string             `json:"code_version"`
	Fingerprint string             `json:"fingerprint"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NewManifest creates a run manifest with a determinism fingerprint over
// every input that influences the output.
func NewManifest(design trial.Design, schedule trial.LookSchedule, reps int, alpha, confLevel float64, baseSeed int64, codeVersion string) Manifest {
	m := Manifest{
		RunID:       core.RunID(core.NewID()),
		Design:      design,
		Schedule:    schedule,
		Repetitions: reps,
		Alpha:       alpha,
		ConfLevel:   confLevel,
		BaseSeed:    baseSeed,
		CodeVersion: codeVersion,
		CreatedAt:   time.Now().UTC(),
	}
	m.Fingerprint = m.fingerprint()
	return m
}

// fingerprint hashes the replay-relevant inputs. RunID and CreatedAt are
// excluded: two runs with identical inputs must fingerprint identically.
func (m Manifest) fingerprint() string {
	payload := struct {
		Design      trial.Design       `json:"design"`
		Schedule    trial.LookSchedule `json:"schedule,omitempty"`
		Repetitions int                `json:"repetitions"`
		Alpha       float64            `json:"alpha"`
		ConfLevel   float64            `json:"conf_level"`
		BaseSeed    int64              `json:"base_seed"`
		CodeVersion string             `json:"code_version"`
	}{m.Design, m.Schedule, m.Repetitions, m.Alpha, m.ConfLevel, m.BaseSeed, m.CodeVersion}

	raw, err := json.Marshal(payload)
	if err != nil {
		// Marshal of plain value types cannot fail; keep the signature clean.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Validate checks the manifest is complete enough to replay.
func (m Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewConfigurationError("run_manifest", "run_id cannot be empty")
	}
	if m.Repetitions <= 0 {
		return fmt.Errorf("%w: run manifest", core.ErrNoRepetitions)
	}
	if m.Alpha <= 0 || m.Alpha >= 1 {
		return core.NewConfigurationError("alpha", fmt.Sprintf("%v outside (0,1)", m.Alpha))
	}
	if m.ConfLevel <= 0 || m.ConfLevel >= 1 {
		return core.NewConfigurationError("conf_level", fmt.Sprintf("%v outside (0,1)", m.ConfLevel))
	}
	return m.Design.Validate()
}
