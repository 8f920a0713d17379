package model

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/ssm"
)

// ManifestFile is the manifest name inside a bundle directory.
const ManifestFile = "manifest.yaml"

const defaultWeightsFile = "weights.bin"

var (
	// ErrChecksum is returned when the weights file does not match the manifest.
	ErrChecksum = errors.New("model: weights checksum mismatch")
	// ErrMissingTensor is returned when a parameter has no manifest entry.
	ErrMissingTensor = errors.New("model: tensor missing from bundle")
	// ErrTensorShape is returned when a manifest shape disagrees with the model.
	ErrTensorShape = errors.New("model: tensor shape mismatch")
	// ErrArchKind is returned when a bundle holds a different architecture.
	ErrArchKind = errors.New("model: unexpected architecture kind")
)

// TensorEntry locates one tensor in the weights file. Offset is in bytes.
type TensorEntry struct {
	Name   string `yaml:"name"`
	Shape  []int  `yaml:"shape,flow"`
	Offset int64  `yaml:"offset"`
}

func (e TensorEntry) size() int {
	n := 1
	for _, d := range e.Shape {
		n *= d
	}
	return n
}

// Manifest describes a weight bundle: a directory holding manifest.yaml and
// a raw little-endian float32 weights file.
type Manifest struct {
	Arch        Arch                   `yaml:"arch"`
	Encoding    *engine.EncodingConfig `yaml:"encoding,omitempty"`
	WeightsFile string                 `yaml:"weights_file"`
	Checksum    string                 `yaml:"checksum"`
	Tensors     []TensorEntry          `yaml:"tensors"`

	// Dir is the bundle directory the manifest was read from.
	Dir string `yaml:"-"`
}

// LoadBundle reads dir/manifest.yaml.
func LoadBundle(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("model: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: parse manifest: %w", err)
	}
	if m.WeightsFile == "" {
		m.WeightsFile = defaultWeightsFile
	}
	m.Dir = dir
	return &m, nil
}

// EncodingConfig returns the bundle's encoding, or the default when the
// manifest carries none.
func (m *Manifest) EncodingConfig() engine.EncodingConfig {
	if m.Encoding != nil {
		return *m.Encoding
	}
	return engine.DefaultEncodingConfig()
}

// TensorShape returns the recorded shape of name.
func (m *Manifest) TensorShape(name string) ([]int, bool) {
	for _, e := range m.Tensors {
		if e.Name == name {
			return e.Shape, true
		}
	}
	return nil, false
}

// LoadWeights verifies the weights file checksum and fills every param in
// place. Every param must be present with an identical shape; extra tensors
// in the bundle are ignored.
func (m *Manifest) LoadWeights(params []ssm.Param) error {
	raw, err := os.ReadFile(filepath.Join(m.Dir, m.WeightsFile))
	if err != nil {
		return fmt.Errorf("model: read weights: %w", err)
	}
	if m.Checksum != "" {
		sum := blake2b.Sum256(raw)
		if got := hex.EncodeToString(sum[:]); got != m.Checksum {
			return fmt.Errorf("got %s, want %s: %w", got, m.Checksum, ErrChecksum)
		}
	}

	index := make(map[string]TensorEntry, len(m.Tensors))
	for _, e := range m.Tensors {
		index[e.Name] = e
	}
	for _, p := range params {
		e, ok := index[p.Name]
		if !ok {
			return fmt.Errorf("%s: %w", p.Name, ErrMissingTensor)
		}
		if !slices.Equal(e.Shape, p.Shape) {
			return fmt.Errorf("%s: bundle %v, model %v: %w", p.Name, e.Shape, p.Shape, ErrTensorShape)
		}
		end := e.Offset + int64(4*e.size())
		if e.Offset < 0 || end > int64(len(raw)) {
			return fmt.Errorf("model: %s: range [%d,%d) outside %d-byte weights file", p.Name, e.Offset, end, len(raw))
		}
		if _, err := binary.Decode(raw[e.Offset:end], binary.LittleEndian, p.Data); err != nil {
			return fmt.Errorf("model: decode %s: %w", p.Name, err)
		}
	}
	return nil
}

// SaveBundle writes params into dir as a bundle for arch and returns the
// manifest it wrote. A nil enc omits the encoding block.
func SaveBundle(dir string, arch Arch, enc *engine.EncodingConfig, params []ssm.Param) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("model: create bundle dir: %w", err)
	}
	m := &Manifest{Arch: arch, Encoding: enc, WeightsFile: defaultWeightsFile, Dir: dir}

	var buf bytes.Buffer
	for _, p := range params {
		if len(p.Data) != p.Size() {
			return nil, fmt.Errorf("%s: %d values for shape %v: %w", p.Name, len(p.Data), p.Shape, ErrTensorShape)
		}
		m.Tensors = append(m.Tensors, TensorEntry{Name: p.Name, Shape: p.Shape, Offset: int64(buf.Len())})
		_ = binary.Write(&buf, binary.LittleEndian, p.Data)
	}
	sum := blake2b.Sum256(buf.Bytes())
	m.Checksum = hex.EncodeToString(sum[:])

	if err := os.WriteFile(filepath.Join(dir, m.WeightsFile), buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("model: write weights: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("model: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("model: write manifest: %w", err)
	}
	return m, nil
}

// LoadWorldModel builds a world model from a mamba2 bundle.
func LoadWorldModel(dir string) (*WorldModel, *Manifest, error) {
	m, err := LoadBundle(dir)
	if err != nil {
		return nil, nil, err
	}
	if m.Arch.Kind != ArchMamba2 {
		return nil, nil, fmt.Errorf("%s: got %q, want %q: %w", dir, m.Arch.Kind, ArchMamba2, ErrArchKind)
	}
	wm, err := NewWorldModel(m.EncodingConfig(), m.Arch)
	if err != nil {
		return nil, nil, err
	}
	if err := m.LoadWeights(wm.Params()); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", dir, err)
	}
	return wm, m, nil
}

// LoadPolicy builds a policy from a policy_mlp bundle using cfg, which the
// caller has already reconciled against the bundle's input width.
func LoadPolicy(m *Manifest, cfg engine.EncodingConfig, contextLen int) (*Policy, error) {
	if m.Arch.Kind != ArchPolicyMLP {
		return nil, fmt.Errorf("%s: got %q, want %q: %w", m.Dir, m.Arch.Kind, ArchPolicyMLP, ErrArchKind)
	}
	arch := m.Arch
	arch.ContextLen = contextLen
	if shape, ok := m.TensorShape("trunk.0.weight"); ok && len(shape) == 2 {
		arch.HiddenDim = shape[0]
	}
	if shape, ok := m.TensorShape("trunk.3.weight"); ok && len(shape) == 2 {
		arch.TrunkDim = shape[0]
	}
	p, err := NewPolicy(cfg, arch)
	if err != nil {
		return nil, err
	}
	if err := m.LoadWeights(p.Params()); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Dir, err)
	}
	return p, nil
}

// PolicyInputDim reads the stacked input width from the first trunk layer.
func (m *Manifest) PolicyInputDim() (int, error) {
	shape, ok := m.TensorShape("trunk.0.weight")
	if !ok || len(shape) != 2 {
		return 0, fmt.Errorf("trunk.0.weight: %w", ErrMissingTensor)
	}
	return shape[1], nil
}
