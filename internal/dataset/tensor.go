package dataset

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

type tensorSpec struct {
	Type       string          `json:"type"`
	TensorSpec tensorSpecInner `json:"tensor-spec"`
}

type tensorSpecInner struct {
	Dtype string `json:"dtype"`
	Shape []int  `json:"shape"`
}

type tensorSchemaJSON struct {
	Features string  `json:"features"`
	Targets  *string `json:"targets"`
}

type tensorProfileJSON struct {
	FeaturesShape  []int `json:"features_shape"`
	FeaturesSize   int   `json:"features_size"`
	FeaturesNBytes int   `json:"features_nbytes"`
}

// FromTensor describes a feature tensor whose first axis is the row axis.
func FromTensor(t tensor.Tensor, src Source, opts ...Option) (*Dataset, error) {
	if t == nil {
		return nil, errors.New("tensor is nil")
	}
	if src == nil {
		return nil, errors.New("dataset source is nil")
	}
	shape := t.Shape()
	if len(shape) == 0 || t.Dims() == 0 {
		return nil, errors.New("cannot describe a scalar tensor")
	}
	o := collect(opts)
	if o.targets != "" {
		return nil, errors.New("tensor datasets do not support a targets column")
	}

	schema, err := tensorSchema(t)
	if err != nil {
		return nil, err
	}
	profile, err := json.Marshal(tensorProfileJSON{
		FeaturesShape:  []int(shape.Clone()),
		FeaturesSize:   t.DataSize(),
		FeaturesNBytes: t.DataSize() * int(t.Dtype().Size()),
	})
	if err != nil {
		return nil, errors.Wrap(err, "Unable to encode profile")
	}
	if o.digest == "" {
		if o.digest, err = tensorDigest(t); err != nil {
			return nil, err
		}
	}
	return &Dataset{
		name:    o.name,
		digest:  o.digest,
		source:  src,
		schema:  schema,
		profile: string(profile),
	}, nil
}

func tensorSchema(t tensor.Tensor) (string, error) {
	shape := append([]int{-1}, t.Shape()[1:]...)
	features, err := json.Marshal([]tensorSpec{{
		Type:       "tensor",
		TensorSpec: tensorSpecInner{Dtype: t.Dtype().String(), Shape: shape},
	}})
	if err != nil {
		return "", errors.Wrap(err, "Unable to encode tensor spec")
	}
	b, err := json.Marshal(map[string]tensorSchemaJSON{
		"mlflow_tensorspec": {Features: string(features)},
	})
	if err != nil {
		return "", errors.Wrap(err, "Unable to encode schema")
	}
	return string(b), nil
}

// tensorDigest hashes the first maxDigestRows rows of raw element values
// and the shape.
func tensorDigest(t tensor.Tensor) (string, error) {
	shape := t.Shape()
	width := 1
	for _, d := range shape[1:] {
		width *= d
	}
	rows := shape[0]
	if rows > maxDigestRows {
		rows = maxDigestRows
	}
	n := rows * width

	h := md5.New()
	var err error
	switch data := t.Data().(type) {
	case []float64:
		err = binary.Write(h, binary.LittleEndian, data[:n])
	case []float32:
		err = binary.Write(h, binary.LittleEndian, data[:n])
	case []int64:
		err = binary.Write(h, binary.LittleEndian, data[:n])
	case []int32:
		err = binary.Write(h, binary.LittleEndian, data[:n])
	case []int:
		wide := make([]int64, n)
		for i, v := range data[:n] {
			wide[i] = int64(v)
		}
		err = binary.Write(h, binary.LittleEndian, wide)
	case []bool:
		err = binary.Write(h, binary.LittleEndian, data[:n])
	default:
		return "", errors.Errorf("unsupported tensor dtype %v", t.Dtype())
	}
	if err != nil {
		return "", errors.Wrap(err, "Unable to hash tensor")
	}
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return finishDigest(h, dims...), nil
}
