package dataset

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"hash"
	"io"

	"github.com/pkg/errors"
)

// maxDigestRows bounds how many rows feed the digest.
const maxDigestRows = 10000

type colSpec struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

type tableProfileJSON struct {
	NumRows     int `json:"num_rows"`
	NumElements int `json:"num_elements"`
}

func tableSchema(t *Table) (string, error) {
	specs := make([]colSpec, len(t.Columns))
	for i, c := range t.Columns {
		specs[i] = colSpec{Type: c.Type, Name: c.Name, Required: true}
	}
	b, err := json.Marshal(map[string][]colSpec{"mlflow_colspec": specs})
	if err != nil {
		return "", errors.Wrap(err, "Unable to encode schema")
	}
	return string(b), nil
}

func tableProfile(t *Table) (string, error) {
	b, err := json.Marshal(tableProfileJSON{NumRows: t.NumRows(), NumElements: t.NumElements()})
	if err != nil {
		return "", errors.Wrap(err, "Unable to encode profile")
	}
	return string(b), nil
}

// tableDigest hashes the column names, the first maxDigestRows rows and the
// table dimensions.
func tableDigest(t *Table) string {
	h := md5.New()
	for _, c := range t.Columns {
		writeField(h, c.Name)
	}
	h.Write([]byte{'\n'})
	rows := t.Rows
	if len(rows) > maxDigestRows {
		rows = rows[:maxDigestRows]
	}
	for _, row := range rows {
		for _, cell := range row {
			writeField(h, cell)
		}
		h.Write([]byte{'\n'})
	}
	return finishDigest(h, int64(t.NumRows()), int64(t.NumElements()))
}

// writeField length-prefixes s so that cell boundaries are unambiguous.
func writeField(h hash.Hash, s string) {
	_ = binary.Write(h, binary.LittleEndian, int64(len(s)))
	_, _ = io.WriteString(h, s)
}

func finishDigest(h hash.Hash, dims ...int64) string {
	for _, d := range dims {
		_ = binary.Write(h, binary.LittleEndian, d)
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}
