package encoder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Artifact file names inside an encoder directory.
const (
	ManifestFile = "encoder.yaml"
	VocabFile    = "vocab.txt"
	WeightsFile  = "weights.bin"

	nativeFormat = "kgpath-native/v1"
)

var weightsMagic = [4]byte{'K', 'G', 'P', 'W'}

// Manifest describes a native encoder artifact.
type Manifest struct {
	Format     string          `yaml:"format"`
	Name       string          `yaml:"name"`
	BaseModel  string          `yaml:"base_model,omitempty"`
	Dimensions int             `yaml:"dimensions"`
	Tokenizer  TokenizerConfig `yaml:"tokenizer"`
	CreatedAt  time.Time       `yaml:"created_at"`
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.Format != nativeFormat {
		return m, fmt.Errorf("unsupported artifact format %q", m.Format)
	}
	if m.Dimensions <= 0 {
		return m, errors.New("manifest dimensions must be positive")
	}
	return m, nil
}

func writeManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// writeWeights stores rows as little-endian float32 after a small header.
func writeWeights(w io.Writer, rows [][]float32, dim int) error {
	bw := bufio.NewWriter(w)
	header := make([]byte, 0, 16)
	header = append(header, weightsMagic[:]...)
	header = binary.LittleEndian.AppendUint32(header, 1)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(rows)))
	header = binary.LittleEndian.AppendUint32(header, uint32(dim))
	if _, err := bw.Write(header); err != nil {
		return err
	}
	buf := make([]byte, 4*dim)
	for _, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("row has %d values, want %d", len(row), dim)
		}
		for j, v := range row {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(v))
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readWeights(r io.Reader, wantRows, wantDim int) ([][]float32, error) {
	br := bufio.NewReader(r)
	header := make([]byte, 16)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("failed to read weights header: %w", err)
	}
	if [4]byte(header[:4]) != weightsMagic {
		return nil, errors.New("weights file has wrong magic")
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != 1 {
		return nil, fmt.Errorf("unsupported weights version %d", v)
	}
	rows := int(binary.LittleEndian.Uint32(header[8:]))
	dim := int(binary.LittleEndian.Uint32(header[12:]))
	if rows != wantRows || dim != wantDim {
		return nil, fmt.Errorf("weights shape %dx%d does not match manifest %dx%d", rows, dim, wantRows, wantDim)
	}

	out := make([][]float32, rows)
	buf := make([]byte, 4*dim)
	for i := range out {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("failed to read weights row %d: %w", i, err)
		}
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		out[i] = row
	}
	return out, nil
}

// LoadNative loads a native encoder artifact directory.
func LoadNative(dir string) (*NativeEncoder, error) {
	fail := func(err error) (*NativeEncoder, error) {
		return nil, &ModelLoadError{Path: dir, Err: err}
	}
	if dir == "" {
		return fail(errors.New("model path is empty"))
	}

	m, err := readManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return fail(err)
	}

	vf, err := os.Open(filepath.Join(dir, VocabFile))
	if err != nil {
		return fail(err)
	}
	vocab, err := ReadVocab(vf)
	vf.Close()
	if err != nil {
		return fail(err)
	}
	tok := NewTokenizer(m.Tokenizer, vocab)

	wf, err := os.Open(filepath.Join(dir, WeightsFile))
	if err != nil {
		return fail(err)
	}
	defer wf.Close()
	weights, err := readWeights(wf, tok.Rows(), m.Dimensions)
	if err != nil {
		return fail(err)
	}

	return &NativeEncoder{manifest: m, tokenizer: tok, weights: weights}, nil
}

// IsArtifact reports whether dir holds a native encoder manifest.
func IsArtifact(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil
}
