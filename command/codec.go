package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/getpup/streamcoord"
	"github.com/goccy/go-json"
)

// ErrUnknownKind is returned by Decode for a "kind" it does not recognise.
var ErrUnknownKind = errors.New("unknown command kind")

// document is the JSON form of any command. Fields not used by a kind are
// ignored.
type document struct {
	Kind        string                                          `json:"kind"`
	Pipeline    streamcoord.PipelineName                        `json:"pipeline"`
	Element     string                                          `json:"element"`
	Algorithm   string                                          `json:"algorithm"`
	Parameters  map[string]string                               `json:"parameters"`
	Parameter   string                                          `json:"parameter"`
	Value       string                                          `json:"value"`
	Status      PipelineStatus                                  `json:"status"`
	Options     map[string]string                               `json:"options"`
	Requests    map[string]streamcoord.ParallelismChangeRequest `json:"requests"`
	Frequency   string                                          `json:"frequency"`
	Observables map[string]bool                                 `json:"observables"`
	Shedder     string                                          `json:"shedder"`
	Ticket      int                                             `json:"ticket"`
	Start       bool                                            `json:"start"`
	From        time.Time                                       `json:"from"`
	To          time.Time                                       `json:"to"`
	Speed       float64                                         `json:"speed"`
	Query       string                                          `json:"query"`
	Family      string                                          `json:"family"`
	Message     string                                          `json:"message"`
	Artifact    string                                          `json:"artifact"`
	Children    []json.RawMessage                               `json:"children"`
}

// Decode parses a JSON command tree. Every node carries a "kind" named after
// Kind.String(); composites list their nodes under "children". The result is
// simplified.
//
//	{"kind": "sequence", "children": [
//	    {"kind": "pipeline", "pipeline": "fin", "status": "start"},
//	    {"kind": "parallelism_change", "pipeline": "fin",
//	     "requests": {"count": {"executorDiff": 2}}}
//	]}
func Decode(data []byte) (Command, error) {
	cmd, err := decode(data, "")
	if err != nil {
		return nil, err
	}
	return Simplify(cmd), nil
}

func decode(data []byte, path string) (Command, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode command%s: %w", at(path), err)
	}

	kind, ok := kindByName(doc.Kind)
	if !ok {
		return nil, fmt.Errorf("%w %q%s", ErrUnknownKind, doc.Kind, at(path))
	}

	switch kind {
	case KindSequence, KindSet:
		children := make([]Command, 0, len(doc.Children))
		for i, raw := range doc.Children {
			child, err := decode(raw, fmt.Sprintf("%s/%d", path, i))
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if kind == KindSequence {
			return NewSequence(children...), nil
		}
		return NewSet(children...), nil
	case KindAlgorithmChange:
		return AlgorithmChange{Pipeline: doc.Pipeline, Element: doc.Element, Algorithm: doc.Algorithm, Parameters: doc.Parameters}, nil
	case KindParameterChange:
		return ParameterChange{Pipeline: doc.Pipeline, Element: doc.Element, Parameter: doc.Parameter, Value: doc.Value}, nil
	case KindPipeline:
		return PipelineCommand{Pipeline: doc.Pipeline, Status: doc.Status, Options: doc.Options}, nil
	case KindParallelismChange:
		return ParallelismChange{Pipeline: doc.Pipeline, Requests: doc.Requests}, nil
	case KindMonitoringChange:
		var frequency time.Duration
		if doc.Frequency != "" {
			d, err := time.ParseDuration(doc.Frequency)
			if err != nil {
				return nil, fmt.Errorf("invalid frequency%s: %w", at(path), err)
			}
			frequency = d
		}
		return MonitoringChange{Pipeline: doc.Pipeline, Element: doc.Element, Frequency: frequency, Observables: doc.Observables}, nil
	case KindLoadShedding:
		return LoadShedding{Pipeline: doc.Pipeline, Element: doc.Element, Shedder: doc.Shedder, Parameters: doc.Parameters}, nil
	case KindReplay:
		return Replay{
			Pipeline: doc.Pipeline,
			Element:  doc.Element,
			Ticket:   doc.Ticket,
			Start:    doc.Start,
			From:     doc.From,
			To:       doc.To,
			Speed:    doc.Speed,
			Query:    doc.Query,
		}, nil
	case KindProfileAlgorithm:
		return ProfileAlgorithm{Family: doc.Family, Algorithm: doc.Algorithm, Parameters: doc.Parameters}, nil
	case KindScheduleWavefrontAdaptation:
		return ScheduleWavefrontAdaptation{Pipeline: doc.Pipeline, Element: doc.Element}, nil
	case KindShutdown:
		return Shutdown{Message: doc.Message}, nil
	case KindUpdate:
		return Update{Artifact: doc.Artifact}, nil
	}

	return nil, fmt.Errorf("%w %q%s", ErrUnknownKind, doc.Kind, at(path))
}

func kindByName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

func at(path string) string {
	if path == "" {
		return ""
	}
	return " at " + path
}
