// pkg/codec/jsoncodec.go
package codec

import (
	"fmt"

	"github.com/go-json-experiment/json"
)

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

// JSON is the codec scripts see through the json module. Object keys are
// emitted in sorted order so encoded output is stable.
var JSON Codec = jsonCodec{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v, json.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}
