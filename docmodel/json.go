package docmodel

import "encoding/json"

// knownRunStartFields and knownRunStopFields list the fixed-schema JSON
// keys that are decoded into named struct fields rather than folded into
// Extra.
var knownRunStartFields = map[string]bool{"uid": true, "time": true, "scan_id": true, "_id": true, "_rev": true}
var knownRunStopFields = map[string]bool{"uid": true, "run_start": true, "time": true, "exit_status": true, "reason": true, "_id": true, "_rev": true}

// UnmarshalJSON decodes the fixed fields into their struct slots and folds
// every other document field into Extra, so user-supplied metadata with no
// fixed schema survives a round trip through the store.
func (r *RunStart) UnmarshalJSON(data []byte) error {
	type alias RunStart
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = RunStart(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Extra = extraFields(raw, knownRunStartFields)
	return nil
}

// MarshalJSON re-merges Extra's fields alongside the fixed schema so a
// round trip preserves user-supplied metadata unchanged.
func (r RunStart) MarshalJSON() ([]byte, error) {
	type alias RunStart
	return marshalWithExtra(alias(r), r.Extra)
}

func (r *RunStop) UnmarshalJSON(data []byte) error {
	type alias RunStop
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = RunStop(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Extra = extraFields(raw, knownRunStopFields)
	return nil
}

func (r RunStop) MarshalJSON() ([]byte, error) {
	type alias RunStop
	return marshalWithExtra(alias(r), r.Extra)
}

func extraFields(raw map[string]json.RawMessage, known map[string]bool) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	extra := map[string]interface{}{}
	for k, v := range raw {
		if known[k] {
			continue
		}
		var val interface{}
		if err := json.Unmarshal(v, &val); err == nil {
			extra[k] = val
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func marshalWithExtra(fixed interface{}, extra map[string]interface{}) ([]byte, error) {
	fixedBytes, err := json.Marshal(fixed)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return fixedBytes, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(fixedBytes, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = b
	}
	return json.Marshal(merged)
}
