// Package caster converts typed values to and from their wire encoding.
package caster

import "github.com/goccy/go-json"

type ChannelCaster[T any] interface {
	From([]byte) (T, error)
	To(T) ([]byte, error)
}

type JSONChannelCaster[T any] struct{}

func (jc JSONChannelCaster[T]) From(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

func (jc JSONChannelCaster[T]) To(v T) ([]byte, error) {
	return json.Marshal(v)
}

// Envelope tags a payload with its message type.
type Envelope[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// Wrap encodes data inside an Envelope of the given type.
func Wrap[T any](msgType string, data T) ([]byte, error) {
	return JSONChannelCaster[Envelope[T]]{}.To(Envelope[T]{Type: msgType, Data: data})
}
