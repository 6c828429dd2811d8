package awardpolicy

import (
	"time"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// Policy는 정산 시 적용할 어워드 설정
type Policy struct {
	Meta   Meta   `yaml:"meta" json:"meta"`
	Awards Awards `yaml:"awards" json:"awards"`
}

// Meta 메타 정보
type Meta struct {
	PolicyID string `yaml:"policy_id" json:"policy_id"`
	Version  string `yaml:"version" json:"version"`
}

// Awards toggles each award. Struct fields, not a map, keep Hash stable.
type Awards struct {
	Champion  Toggle `yaml:"champion" json:"champion"`
	RunnerUp  Toggle `yaml:"runner_up" json:"runner_up"`
	LastPlace Toggle `yaml:"last_place" json:"last_place"`
	Oracle    Toggle `yaml:"oracle" json:"oracle"`
	Freefall  Toggle `yaml:"freefall" json:"freefall"`
	AllGreen  Toggle `yaml:"all_green" json:"all_green"`
	AllIn     AllIn  `yaml:"all_in" json:"all_in"`
}

type Toggle struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// AllIn 집중 투자 어워드
type AllIn struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Threshold float64 `yaml:"threshold" json:"threshold"` // 예산 대비 비중 (0, 1]
}

// Default enables all seven awards with the given ALL_IN threshold
func Default(allInThreshold float64) *Policy {
	on := Toggle{Enabled: true}
	return &Policy{
		Meta: Meta{PolicyID: "default", Version: "1"},
		Awards: Awards{
			Champion:  on,
			RunnerUp:  on,
			LastPlace: on,
			Oracle:    on,
			Freefall:  on,
			AllGreen:  on,
			AllIn:     AllIn{Enabled: true, Threshold: allInThreshold},
		},
	}
}

// Enabled lists the active awards in evaluation order
func (p *Policy) Enabled() []contracts.AwardType {
	flags := []struct {
		t  contracts.AwardType
		on bool
	}{
		{contracts.AwardChampion, p.Awards.Champion.Enabled},
		{contracts.AwardRunnerUp, p.Awards.RunnerUp.Enabled},
		{contracts.AwardLastPlace, p.Awards.LastPlace.Enabled},
		{contracts.AwardOracle, p.Awards.Oracle.Enabled},
		{contracts.AwardFreefall, p.Awards.Freefall.Enabled},
		{contracts.AwardAllGreen, p.Awards.AllGreen.Enabled},
		{contracts.AwardAllIn, p.Awards.AllIn.Enabled},
	}

	out := make([]contracts.AwardType, 0, len(flags))
	for _, f := range flags {
		if f.on {
			out = append(out, f.t)
		}
	}
	return out
}

// Snapshot records which policy produced a settlement
type Snapshot struct {
	PolicyHash string    `json:"policy_hash"`
	PolicyYAML string    `json:"policy_yaml"`
	PolicyID   string    `json:"policy_id"`
	LoadedAt   time.Time `json:"loaded_at"`
}
