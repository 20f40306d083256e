package ipc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Control commands understood by the daemon.
const (
	CommandStatus   = "status"
	CommandEvaluate = "evaluate"
	CommandSwitch   = "switch"
	CommandReload   = "reload"
)

type Request struct {
	Command string `json:"command"`
	Class   string `json:"class,omitempty"`
	Device  string `json:"device,omitempty"`
}

type Response struct {
	OK      bool            `json:"ok"`
	State   string          `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// WithData attaches v as the JSON payload of r.
func (r Response) WithData(v any) (Response, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("encode response data: %w", err)
	}
	r.Data = raw
	return r, nil
}

// DecodeData unmarshals the JSON payload into v.
func (r Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response carries no data")
	}
	return json.Unmarshal(r.Data, v)
}

// toStruct carries a JSON-tagged value across the wire as a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
