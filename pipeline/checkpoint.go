package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCheckpoints reads a checkpoint table from a YAML file. An empty path
// returns DefaultCheckpoints.
func LoadCheckpoints(path string) ([]Checkpoint, error) {
	if path == "" {
		return DefaultCheckpoints(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint file %s: %w", path, err)
	}
	var doc CheckpointDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing checkpoint file %s: %w", path, err)
	}
	return doc.Checkpoints, nil
}

// matchCheckpoint returns the first checkpoint for stage/depth whose
// predicate is satisfied by fields, or nil if none matches.
func matchCheckpoint(checkpoints []Checkpoint, stage string, depth Depth, fields map[string]interface{}) *Checkpoint {
	for i := range checkpoints {
		cp := &checkpoints[i]
		if cp.Stage != stage {
			continue
		}
		if cp.Depth != "" && cp.Depth != depth {
			continue
		}
		if evaluatePredicate(cp.When, fields) {
			return cp
		}
	}
	return nil
}

func evaluatePredicate(pred CheckpointPredicate, fields map[string]interface{}) bool {
	actual, ok := fields[pred.Field]
	if !ok {
		return false
	}
	actualF, aok := toFloat(actual)
	expectF, eok := toFloat(pred.Value)
	if aok && eok {
		switch pred.Op {
		case "gt":
			return actualF > expectF
		case "lt":
			return actualF < expectF
		case "ge":
			return actualF >= expectF
		case "le":
			return actualF <= expectF
		case "eq":
			return actualF == expectF
		case "ne":
			return actualF != expectF
		}
	}
	switch pred.Op {
	case "eq":
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", pred.Value)
	case "ne":
		return fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", pred.Value)
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
