package calibration

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a calibration YAML file and returns it with the raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*File, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return f, data, nil
}

// Parse decodes and validates calibration YAML
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}

	if err := Validate(&f); err != nil {
		return nil, err
	}

	return &f, nil
}

// Hash generates SHA256 hash from the file (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(f *File) (string, error) {
	jsonBytes, err := json.Marshal(f)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewSnapshot creates a snapshot for audit
func NewSnapshot(f *File, yamlData []byte) (*Snapshot, error) {
	hash, err := Hash(f)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Version:    f.Meta.Version,
		ConfigHash: hash,
		ConfigYAML: string(yamlData),
		CreatedAt:  time.Now(),
	}, nil
}
