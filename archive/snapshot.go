package archive

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/scfkit/go-scf/field"
)

// ErrNoSnapshot reports a run with no stored fixpoint.
var ErrNoSnapshot = errors.New("archive: no snapshot for run")

// SaveSnapshot stores a run's fixpoint, zstd-compressed. A run has at
// most one snapshot; saving again replaces it.
func (s *Store) SaveSnapshot(runID string, x *field.Field) error {
	raw := encodeFloats(x.Data)
	blob := s.enc.EncodeAll(raw, nil)
	_, err := s.db.Exec(
		`INSERT INTO snapshots (run_id, shape, data, raw_bytes) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET shape = excluded.shape,
		 data = excluded.data, raw_bytes = excluded.raw_bytes`,
		runID, encodeShape(x.Shape), blob, len(raw),
	)
	return err
}

// LoadSnapshot retrieves a run's stored fixpoint.
func (s *Store) LoadSnapshot(runID string) (*field.Field, error) {
	row := s.db.QueryRow(
		`SELECT shape, data, raw_bytes FROM snapshots WHERE run_id = ?`, runID)

	var shapeText string
	var blob []byte
	var rawBytes int
	if err := row.Scan(&shapeText, &blob, &rawBytes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, runID)
		}
		return nil, err
	}

	raw, err := s.dec.DecodeAll(blob, make([]byte, 0, rawBytes))
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	shape, err := decodeShape(shapeText)
	if err != nil {
		return nil, err
	}
	data, err := decodeFloats(raw)
	if err != nil {
		return nil, err
	}
	return field.New(shape, data)
}

// encodeFloats packs float64 values as little-endian IEEE 754 bits.
func encodeFloats(data []float64) []byte {
	raw := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return raw
}

func decodeFloats(raw []byte) ([]float64, error) {
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("snapshot payload is %d bytes, not a multiple of 8", len(raw))
	}
	data := make([]float64, len(raw)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return data, nil
}

// encodeShape renders a shape as "4x4x2".
func encodeShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x")
}

func decodeShape(text string) ([]int, error) {
	// A scalar field has an empty shape, which encodes as "".
	if text == "" {
		return []int{}, nil
	}
	parts := strings.Split(text, "x")
	shape := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid shape %q: %w", text, err)
		}
		shape[i] = d
	}
	return shape, nil
}
