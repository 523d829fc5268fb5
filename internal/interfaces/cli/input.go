package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// readDocument reads path ("-" is stdin) and returns it as JSON. YAML input is
// accepted; JSON is valid YAML so both take the same path.
func readDocument(path string, stdin io.Reader) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "cannot read input").WithDetail("file=" + path)
	}

	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "input is neither JSON nor YAML").WithDetail("file=" + path)
	}
	if doc == nil {
		return nil, errors.InvalidParam("input is empty").WithDetail("file=" + path)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "input cannot be represented as JSON").WithDetail("file=" + path)
	}
	return out, nil
}

// decodeStrict decodes JSON into v, rejecting unknown fields.
func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "malformed input")
	}
	return nil
}

// readRecords accepts a list of records, {"records": [...]}, or a whole
// evaluation, whose tests are used.
func readRecords(path string, stdin io.Reader) ([]fce.TestRecord, error) {
	data, err := readDocument(path, stdin)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []fce.TestRecord
		if err := decodeStrict(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "input must be a list or an object")
	}
	if _, ok := probe["tests"]; ok {
		ev, err := decodeEvaluation(data)
		if err != nil {
			return nil, err
		}
		return ev.Records(), nil
	}

	var batch struct {
		Records []fce.TestRecord `json:"records"`
	}
	if err := decodeStrict(data, &batch); err != nil {
		return nil, err
	}
	return batch.Records, nil
}

// readEvaluation reads an evaluation document and assigns an id when it has none.
func readEvaluation(path string, stdin io.Reader) (*evaluation.Evaluation, error) {
	data, err := readDocument(path, stdin)
	if err != nil {
		return nil, err
	}
	ev, err := decodeEvaluation(data)
	if err != nil {
		return nil, err
	}
	ev.EnsureID()
	return ev, nil
}

func decodeEvaluation(data []byte) (*evaluation.Evaluation, error) {
	var ev evaluation.Evaluation
	if err := decodeStrict(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
