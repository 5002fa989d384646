// Package loopparams implements the track.loop_params settings grammar of
// spec.md 4.4/6: a one- or two-stage loop-filter coefficient spec. Grounded
// on the teacher's regexp-based tokenizer style in internal/sdrxml's
// ParseScanFormat (a fixed regexp plus strconv conversions, errors wrapped
// with fmt.Errorf("...: %w", err)), adapted from IIO scan-format strings to
// this comma/paren grammar.
package loopparams

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSpec is the default value of the track.loop_params setting
// (spec.md 6).
const DefaultSpec = "(1 ms, (1, 0.7, 1, 1540), (10, 0.7, 1, 5)), (5 ms, (1, 0.7, 1, 1540), (50, 0.7, 1, 0))"

// validCoherentMs is the set of integration periods the hardware supports;
// equivalently, values that divide 20 evenly and are nonzero.
var validCoherentMs = map[int]bool{1: true, 2: true, 4: true, 5: true, 10: true, 20: true}

// Stage holds one stage's aided-loop-filter coefficients (spec.md 3,
// "LoopParamsStage[0..1]").
type Stage struct {
	CoherentMs int

	CodeBW     float64
	CodeZeta   float64
	CodeK      float64
	CarrToCode float64

	CarrBW         float64
	CarrZeta       float64
	CarrK          float64
	CarrFLLAidGain float64
}

// String serializes a Stage back into the grammar's stage syntax, the
// inverse of Parse (spec.md 8 round-trip property).
func (s Stage) String() string {
	return fmt.Sprintf("(%s ms, (%s, %s, %s, %s), (%s, %s, %s, %s))",
		formatNum(float64(s.CoherentMs)),
		formatNum(s.CodeBW), formatNum(s.CodeZeta), formatNum(s.CodeK), formatNum(s.CarrToCode),
		formatNum(s.CarrBW), formatNum(s.CarrZeta), formatNum(s.CarrK), formatNum(s.CarrFLLAidGain),
	)
}

func formatNum(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

const numPattern = `[-+]?[0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?`

var stagePattern = `\(\s*(` + numPattern + `)\s*ms\s*,\s*` +
	`\(\s*(` + numPattern + `)\s*,\s*(` + numPattern + `)\s*,\s*(` + numPattern + `)\s*,\s*(` + numPattern + `)\s*\)\s*,\s*` +
	`\(\s*(` + numPattern + `)\s*,\s*(` + numPattern + `)\s*,\s*(` + numPattern + `)\s*,\s*(` + numPattern + `)\s*\)\s*\)`

var (
	oneStageRe = regexp.MustCompile(`^\s*` + stagePattern + `\s*$`)
	twoStageRe = regexp.MustCompile(`^\s*` + stagePattern + `\s*,\s*` + stagePattern + `\s*$`)
)

// Serialize formats a [2]Stage pair as a two-stage spec string.
func Serialize(stages [2]Stage) string {
	return stages[0].String() + ", " + stages[1].String()
}

// Parse decodes a loop-parameter spec string into a validated [2]Stage
// pair. If the second stage is absent, it is set equal to the first
// (spec.md 4.4). Parsing is atomic: on any validation failure the caller's
// existing live parameters are left untouched (spec.md 7) because Parse
// never returns a partially-built result alongside an error.
func Parse(spec string) ([2]Stage, error) {
	var stages [2]Stage

	if m := twoStageRe.FindStringSubmatch(spec); m != nil {
		s0, err := parseStage(m[1:10])
		if err != nil {
			return stages, fmt.Errorf("loop_params stage 0: %w", err)
		}
		s1, err := parseStage(m[10:19])
		if err != nil {
			return stages, fmt.Errorf("loop_params stage 1: %w", err)
		}
		stages = [2]Stage{s0, s1}
	} else if m := oneStageRe.FindStringSubmatch(spec); m != nil {
		s0, err := parseStage(m[1:10])
		if err != nil {
			return stages, fmt.Errorf("loop_params: %w", err)
		}
		stages = [2]Stage{s0, s0}
	} else {
		return stages, fmt.Errorf("loop_params: malformed spec %q", strings.TrimSpace(spec))
	}

	if !validCoherentMs[stages[0].CoherentMs] {
		return [2]Stage{}, fmt.Errorf("loop_params stage 0: coherent_ms %d must be one of {1,2,4,5,10,20}", stages[0].CoherentMs)
	}
	if stages[0].CoherentMs != 1 {
		return [2]Stage{}, fmt.Errorf("loop_params stage 0: coherent_ms must be 1, got %d", stages[0].CoherentMs)
	}
	if !validCoherentMs[stages[1].CoherentMs] {
		return [2]Stage{}, fmt.Errorf("loop_params stage 1: coherent_ms %d must be one of {1,2,4,5,10,20}", stages[1].CoherentMs)
	}

	return stages, nil
}

func parseStage(fields []string) (Stage, error) {
	nums := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Stage{}, fmt.Errorf("parse field %q: %w", f, err)
		}
		nums[i] = v
	}
	return Stage{
		CoherentMs:     int(nums[0]),
		CodeBW:         nums[1],
		CodeZeta:       nums[2],
		CodeK:          nums[3],
		CarrToCode:     nums[4],
		CarrBW:         nums[5],
		CarrZeta:       nums[6],
		CarrK:          nums[7],
		CarrFLLAidGain: nums[8],
	}, nil
}
