package awardpolicy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML policy file and returns it with the raw bytes
// KnownFields(true): 오타/미사용 필드 즉시 실패
func Load(path string) (*Policy, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	p, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return p, data, nil
}

// Parse decodes and validates a policy document
func Parse(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}

	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Hash generates a SHA256 hash from the policy (canonical JSON)
func Hash(p *Policy) (string, error) {
	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewSnapshot hashes p for settlement logs
func NewSnapshot(p *Policy, yamlData []byte) (*Snapshot, error) {
	hash, err := Hash(p)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		PolicyHash: hash,
		PolicyYAML: string(yamlData),
		PolicyID:   p.Meta.PolicyID,
		LoadedAt:   time.Now(),
	}, nil
}
