package awardpolicy

import "fmt"

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(p *Policy) error {
	if p.Meta.PolicyID == "" {
		return ValidationError{"meta.policy_id", "required"}
	}

	if p.Awards.AllIn.Enabled {
		t := p.Awards.AllIn.Threshold
		if t <= 0 || t > 1 {
			return ValidationError{"awards.all_in.threshold", "must be in (0, 1]"}
		}
	}

	// 챔피언 없는 정산은 허용하지 않음
	if !p.Awards.Champion.Enabled {
		return ValidationError{"awards.champion.enabled", "must be true"}
	}
	return nil
}
