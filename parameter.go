package ho

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// Parameter type names used by ParamSpec.
const (
	ParamTypeContinuous  = "continuous"
	ParamTypeInteger     = "integer"
	ParamTypeDiscrete    = "discrete"
	ParamTypeCategorical = "categorical"
)

// ParamDef describes the domain of a single parameter and how its native
// values map to the model's normalized [0,1] vector.
//
// Implementations in this package:
//   - MinMaxNumeric: continuous float64 range, linear encoding
//   - ParameterRange[T]: generic integer or float range
//   - Discrete: ordered numeric set, ordinal encoding
//   - Categorical: unordered string set, one-hot encoding
type ParamDef interface {
	// Dim is the number of vector dimensions the parameter occupies.
	Dim() int

	// Validate checks the definition itself.
	Validate() error

	// Sample draws a native value uniformly from the domain.
	Sample(rng *rand.Rand) any

	// Normalize coerces v to the native type and checks it lies in the
	// domain. Returns ErrInvalidParameter otherwise.
	Normalize(v any) (any, error)

	// Encode maps a native value to Dim() numbers in [0,1].
	Encode(v any) ([]float64, error)

	// Decode maps Dim() numbers (clamped to [0,1]) back to a native value.
	Decode(u []float64) any

	// Spec returns the serializable form of the definition.
	Spec() ParamSpec
}

// ParamSpec is the serializable description of a parameter, used by
// configuration files and the REST front-end.
type ParamSpec struct {
	// Type is one of continuous, integer, discrete, categorical.
	Type string `json:"type" yaml:"type"`

	// Min and Max bound continuous and integer parameters (inclusive).
	Min float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// Values lists the allowed values of discrete (numbers) and categorical
	// (strings) parameters.
	Values []any `json:"values,omitempty" yaml:"values,omitempty"`
}

// Def builds the parameter definition described by the spec.
func (p ParamSpec) Def() (ParamDef, error) {
	var def ParamDef

	switch p.Type {
	case ParamTypeContinuous:
		def = MinMaxNumeric{Min: p.Min, Max: p.Max}
	case ParamTypeInteger:
		if p.Min != math.Trunc(p.Min) || p.Max != math.Trunc(p.Max) {
			return nil, fmt.Errorf("%w: integer bounds must be integral, got [%v, %v]", ErrConfiguration, p.Min, p.Max)
		}

		def = ParameterRange[int]{Min: int(p.Min), Max: int(p.Max)}
	case ParamTypeDiscrete:
		values := make([]float64, 0, len(p.Values))

		for _, v := range p.Values {
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("%w: discrete value %v is not numeric", ErrConfiguration, v)
			}

			values = append(values, f)
		}

		def = Discrete{Values: values}
	case ParamTypeCategorical:
		values := make([]string, 0, len(p.Values))

		for _, v := range p.Values {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: categorical value %v is not a string", ErrConfiguration, v)
			}

			values = append(values, s)
		}

		def = Categorical{Values: values}
	default:
		return nil, fmt.Errorf("%w: unknown parameter type %q", ErrConfiguration, p.Type)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return def, nil
}

//////
// MinMaxNumeric.
//////

// MinMaxNumeric is a continuous float64 parameter in [Min, Max], mapped
// linearly to [0,1].
type MinMaxNumeric struct {
	Min float64
	Max float64
}

// Dim implements ParamDef.
func (p MinMaxNumeric) Dim() int { return 1 }

// Validate implements ParamDef.
func (p MinMaxNumeric) Validate() error {
	if !isFinite(p.Min) || !isFinite(p.Max) || p.Min > p.Max {
		return fmt.Errorf("%w: invalid range [%v, %v]", ErrConfiguration, p.Min, p.Max)
	}

	return nil
}

// Sample implements ParamDef.
func (p MinMaxNumeric) Sample(rng *rand.Rand) any {
	return p.Min + rng.Float64()*(p.Max-p.Min)
}

// Normalize implements ParamDef.
func (p MinMaxNumeric) Normalize(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || f < p.Min || f > p.Max {
		return nil, fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidParameter, v, p.Min, p.Max)
	}

	return f, nil
}

// Encode implements ParamDef.
func (p MinMaxNumeric) Encode(v any) ([]float64, error) {
	n, err := p.Normalize(v)
	if err != nil {
		return nil, err
	}

	if p.Max == p.Min {
		return []float64{0}, nil
	}

	return []float64{(n.(float64) - p.Min) / (p.Max - p.Min)}, nil
}

// Decode implements ParamDef.
func (p MinMaxNumeric) Decode(u []float64) any {
	return p.Min + clamp(u[0], 0, 1)*(p.Max-p.Min)
}

// Spec implements ParamDef.
func (p MinMaxNumeric) Spec() ParamSpec {
	return ParamSpec{Type: ParamTypeContinuous, Min: p.Min, Max: p.Max}
}

//////
// ParameterRange.
//////

// ParameterRange defines the valid range for a numeric hyperparameter.
//
// Type Parameter:
//   - T: The numeric type for this parameter range (int64 or float64)
//
// Fields:
// - Min: The minimum (inclusive) value for this hyperparameter
// - Max: The maximum (inclusive) value for this hyperparameter
//
// Usage:
//
//	// Example 1: Buffer size range from 1KB to 1MB
//	bufferSizeRange := ParameterRange[int64]{
//	    Min: 1024,      // 1KB
//	    Max: 1048576,   // 1MB
//	}
//
//	// Example 2: Learning rate range from 0.0001 to 0.1
//	learningRateRange := ParameterRange[float64]{
//	    Min: 0.0001,
//	    Max: 0.1,
//	}
//
// Encoding:
//   - Float types map linearly to [0,1]
//   - Integer types split [0,1] into Max-Min+1 equal bins and encode a value
//     as the centre of its bin, so every integer is reachable by the model
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive) for this hyperparameter.
	Min T

	// Max defines the maximum allowed value (inclusive) for this hyperparameter.
	Max T
}

// Dim implements ParamDef.
func (p ParameterRange[T]) Dim() int { return 1 }

// Validate implements ParamDef.
func (p ParameterRange[T]) Validate() error {
	if p.Min > p.Max || !isFinite(float64(p.Min)) || !isFinite(float64(p.Max)) {
		return fmt.Errorf("%w: invalid range [%v, %v]", ErrConfiguration, p.Min, p.Max)
	}

	return nil
}

// bins is the number of integer values in the range.
func (p ParameterRange[T]) bins() float64 {
	return float64(p.Max) - float64(p.Min) + 1
}

// Sample implements ParamDef.
func (p ParameterRange[T]) Sample(rng *rand.Rand) any {
	if isIntegerType[T]() {
		return T(float64(p.Min) + float64(rng.Int63n(int64(p.bins()))))
	}

	return T(float64(p.Min) + rng.Float64()*(float64(p.Max)-float64(p.Min)))
}

// Normalize implements ParamDef.
func (p ParameterRange[T]) Normalize(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || f < float64(p.Min) || f > float64(p.Max) {
		return nil, fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidParameter, v, p.Min, p.Max)
	}

	if isIntegerType[T]() && f != math.Trunc(f) {
		return nil, fmt.Errorf("%w: %v is not an integer", ErrInvalidParameter, v)
	}

	return T(f), nil
}

// Encode implements ParamDef.
func (p ParameterRange[T]) Encode(v any) ([]float64, error) {
	n, err := p.Normalize(v)
	if err != nil {
		return nil, err
	}

	f := float64(n.(T))

	if isIntegerType[T]() {
		return []float64{(f - float64(p.Min) + 0.5) / p.bins()}, nil
	}

	if p.Max == p.Min {
		return []float64{0}, nil
	}

	return []float64{(f - float64(p.Min)) / (float64(p.Max) - float64(p.Min))}, nil
}

// Decode implements ParamDef.
func (p ParameterRange[T]) Decode(u []float64) any {
	x := clamp(u[0], 0, 1)

	if isIntegerType[T]() {
		k := clamp(math.Floor(x*p.bins()), 0, p.bins()-1)

		return T(float64(p.Min) + k)
	}

	return T(float64(p.Min) + x*(float64(p.Max)-float64(p.Min)))
}

// Spec implements ParamDef.
func (p ParameterRange[T]) Spec() ParamSpec {
	typ := ParamTypeContinuous
	if isIntegerType[T]() {
		typ = ParamTypeInteger
	}

	return ParamSpec{Type: typ, Min: float64(p.Min), Max: float64(p.Max)}
}

//////
// Discrete.
//////

// Discrete is an ordered set of numeric values. It uses an ordinal encoding:
// value i of n is encoded as the centre of the i-th of n equal bins.
type Discrete struct {
	Values []float64
}

// Dim implements ParamDef.
func (p Discrete) Dim() int { return 1 }

// Validate implements ParamDef.
func (p Discrete) Validate() error {
	if len(p.Values) == 0 {
		return fmt.Errorf("%w: discrete parameter without values", ErrConfiguration)
	}

	seen := make(map[float64]struct{}, len(p.Values))

	for _, v := range p.Values {
		if !isFinite(v) {
			return fmt.Errorf("%w: discrete value %v is not finite", ErrConfiguration, v)
		}

		if _, ok := seen[v]; ok {
			return fmt.Errorf("%w: duplicate discrete value %v", ErrConfiguration, v)
		}

		seen[v] = struct{}{}
	}

	return nil
}

// Sample implements ParamDef.
func (p Discrete) Sample(rng *rand.Rand) any {
	return p.Values[rng.Intn(len(p.Values))]
}

func (p Discrete) index(v any) (int, error) {
	f, ok := toFloat(v)
	if ok {
		for i, value := range p.Values {
			if value == f {
				return i, nil
			}
		}
	}

	return -1, fmt.Errorf("%w: %v not in %v", ErrInvalidParameter, v, p.Values)
}

// Normalize implements ParamDef.
func (p Discrete) Normalize(v any) (any, error) {
	i, err := p.index(v)
	if err != nil {
		return nil, err
	}

	return p.Values[i], nil
}

// Encode implements ParamDef.
func (p Discrete) Encode(v any) ([]float64, error) {
	i, err := p.index(v)
	if err != nil {
		return nil, err
	}

	return []float64{(float64(i) + 0.5) / float64(len(p.Values))}, nil
}

// Decode implements ParamDef.
func (p Discrete) Decode(u []float64) any {
	n := float64(len(p.Values))

	return p.Values[int(clamp(math.Floor(clamp(u[0], 0, 1)*n), 0, n-1))]
}

// Spec implements ParamDef.
func (p Discrete) Spec() ParamSpec {
	values := make([]any, len(p.Values))
	for i, v := range p.Values {
		values[i] = v
	}

	return ParamSpec{Type: ParamTypeDiscrete, Values: values}
}

//////
// Categorical.
//////

// Categorical is an unordered set of string values, one-hot encoded. Decoding
// picks the largest component; ties go to the first value.
type Categorical struct {
	Values []string
}

// Dim implements ParamDef.
func (p Categorical) Dim() int { return len(p.Values) }

// Validate implements ParamDef.
func (p Categorical) Validate() error {
	if len(p.Values) == 0 {
		return fmt.Errorf("%w: categorical parameter without values", ErrConfiguration)
	}

	seen := make(map[string]struct{}, len(p.Values))

	for _, v := range p.Values {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%w: duplicate categorical value %q", ErrConfiguration, v)
		}

		seen[v] = struct{}{}
	}

	return nil
}

// Sample implements ParamDef.
func (p Categorical) Sample(rng *rand.Rand) any {
	return p.Values[rng.Intn(len(p.Values))]
}

func (p Categorical) index(v any) (int, error) {
	if s, ok := v.(string); ok {
		for i, value := range p.Values {
			if value == s {
				return i, nil
			}
		}
	}

	return -1, fmt.Errorf("%w: %v not in %v", ErrInvalidParameter, v, p.Values)
}

// Normalize implements ParamDef.
func (p Categorical) Normalize(v any) (any, error) {
	i, err := p.index(v)
	if err != nil {
		return nil, err
	}

	return p.Values[i], nil
}

// Encode implements ParamDef.
func (p Categorical) Encode(v any) ([]float64, error) {
	i, err := p.index(v)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(p.Values))
	out[i] = 1

	return out, nil
}

// Decode implements ParamDef.
func (p Categorical) Decode(u []float64) any {
	best := 0

	for i := range u {
		if u[i] > u[best] {
			best = i
		}
	}

	return p.Values[best]
}

// Spec implements ParamDef.
func (p Categorical) Spec() ParamSpec {
	values := make([]any, len(p.Values))
	for i, v := range p.Values {
		values[i] = v
	}

	return ParamSpec{Type: ParamTypeCategorical, Values: values}
}

//////
// ParameterSpace.
//////

// ParameterSpace maps parameter names to their definitions and converts
// between native parameter maps and normalized vectors.
//
// Dimension order is fixed at construction: parameters are sorted by name and
// each contributes Dim() consecutive dimensions. The layout never changes for
// the lifetime of the space, so it's safe to share between goroutines.
type ParameterSpace struct {
	names   []string
	defs    map[string]ParamDef
	offsets map[string]int
	dim     int
}

// NewParameterSpace validates the definitions and fixes the vector layout.
func NewParameterSpace(defs map[string]ParamDef) (*ParameterSpace, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: empty parameter space", ErrConfiguration)
	}

	s := &ParameterSpace{
		names:   make([]string, 0, len(defs)),
		defs:    make(map[string]ParamDef, len(defs)),
		offsets: make(map[string]int, len(defs)),
	}

	for name, def := range defs {
		if def == nil {
			return nil, fmt.Errorf("%w: parameter %q has no definition", ErrConfiguration, name)
		}

		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}

		s.names = append(s.names, name)
		s.defs[name] = def
	}

	sort.Strings(s.names)

	for _, name := range s.names {
		s.offsets[name] = s.dim
		s.dim += s.defs[name].Dim()
	}

	return s, nil
}

// NewParameterSpaceFromSpecs builds a space from serializable specs.
func NewParameterSpaceFromSpecs(specs map[string]ParamSpec) (*ParameterSpace, error) {
	defs := make(map[string]ParamDef, len(specs))

	for name, spec := range specs {
		def, err := spec.Def()
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}

		defs[name] = def
	}

	return NewParameterSpace(defs)
}

// Names returns the parameter names in vector order.
func (s *ParameterSpace) Names() []string {
	return append([]string(nil), s.names...)
}

// Dim returns the length of the normalized vector.
func (s *ParameterSpace) Dim() int { return s.dim }

// Def returns the definition of a parameter.
func (s *ParameterSpace) Def(name string) (ParamDef, bool) {
	def, ok := s.defs[name]

	return def, ok
}

// Specs returns the serializable form of the space.
func (s *ParameterSpace) Specs() map[string]ParamSpec {
	out := make(map[string]ParamSpec, len(s.defs))
	for name, def := range s.defs {
		out[name] = def.Spec()
	}

	return out
}

// SampleUniform draws every parameter uniformly from its domain.
func (s *ParameterSpace) SampleUniform(rng *rand.Rand) map[string]any {
	params := make(map[string]any, len(s.names))
	for _, name := range s.names {
		params[name] = s.defs[name].Sample(rng)
	}

	return params
}

// Normalize returns a copy of params with every value coerced to its native
// type. Missing, unknown and out-of-domain parameters fail with
// ErrInvalidParameter.
func (s *ParameterSpace) Normalize(params map[string]any) (map[string]any, error) {
	for name := range params {
		if _, ok := s.defs[name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
		}
	}

	out := make(map[string]any, len(s.names))

	for _, name := range s.names {
		v, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing parameter %q", ErrInvalidParameter, name)
		}

		n, err := s.defs[name].Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}

		out[name] = n
	}

	return out, nil
}

// ToVector encodes params into a normalized vector in [0,1]^Dim().
func (s *ParameterSpace) ToVector(params map[string]any) ([]float64, error) {
	normalized, err := s.Normalize(params)
	if err != nil {
		return nil, err
	}

	vector := make([]float64, 0, s.dim)

	for _, name := range s.names {
		enc, err := s.defs[name].Encode(normalized[name])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}

		vector = append(vector, enc...)
	}

	return vector, nil
}

// FromVector decodes a normalized vector back into native params, snapping
// each component to the nearest valid value. Components outside [0,1] fail
// with ErrInvalidParameter.
func (s *ParameterSpace) FromVector(vector []float64) (map[string]any, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: vector has %d dimensions, want %d", ErrInvalidParameter, len(vector), s.dim)
	}

	for i, v := range vector {
		if !(v >= 0 && v <= 1) {
			return nil, fmt.Errorf("%w: vector component %d is %v, outside [0,1]", ErrInvalidParameter, i, v)
		}
	}

	params := make(map[string]any, len(s.names))

	for _, name := range s.names {
		def := s.defs[name]
		off := s.offsets[name]
		params[name] = def.Decode(vector[off : off+def.Dim()])
	}

	return params, nil
}
