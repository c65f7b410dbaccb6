package api

import "encoding/json"

// jsonCodec serializes plain Go messages for the Connect protocol. It
// replaces Connect's default "json" codec, which only accepts protobuf
// messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
