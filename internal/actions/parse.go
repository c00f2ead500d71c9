package actions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"vr2osc/internal/osc"
)

// ConfigError reports a malformed or structurally invalid action-set document.
type ConfigError struct {
	// Path locates the offending node, e.g. "actions[1].analog[0].input_max".
	Path string
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid action set")
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Document shapes. Variant fields are pointers so that presence can be told
// apart from an empty list. Tags serve both decoders.
type groupDoc struct {
	ID      docString   `yaml:"id" json:"id" validate:"required,excludesall=/"`
	Name    docString   `yaml:"name" json:"name" validate:"required"`
	Actions []actionDoc `yaml:"actions" json:"actions" validate:"required"`
}

type actionDoc struct {
	ID     docString      `yaml:"id" json:"id" validate:"required,excludesall=/"`
	Name   docString      `yaml:"name" json:"name" validate:"required"`
	Analog *[]rangeDoc    `yaml:"analog" json:"analog"`
	Binary *binaryDoc     `yaml:"binary" json:"binary"`
	Rotate *[]positionDoc `yaml:"rotate" json:"rotate"`
}

type rangeDoc struct {
	Key       docString `yaml:"key" json:"key" validate:"required"`
	InputMin  *float32  `yaml:"input_min" json:"input_min" validate:"required"`
	InputMax  *float32  `yaml:"input_max" json:"input_max" validate:"required"`
	OutputMin *float32  `yaml:"output_min" json:"output_min" validate:"required"`
	OutputMax *float32  `yaml:"output_max" json:"output_max" validate:"required"`
}

type binaryDoc struct {
	Press   []oneShotDoc `yaml:"press" json:"press"`
	Release []oneShotDoc `yaml:"release" json:"release"`
}

type positionDoc struct {
	Enter []oneShotDoc `yaml:"enter" json:"enter"`
	Exit  []oneShotDoc `yaml:"exit" json:"exit"`
}

type oneShotDoc struct {
	Key   docString `yaml:"key" json:"key" validate:"required"`
	Value docValue  `yaml:"value" json:"value" validate:"-"`
}

// docString only accepts string scalars, so `id: 5` is an error rather
// than "5". encoding/json already rejects numbers for string fields.
type docString string

func (s *docString) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return fmt.Errorf("line %d: expected a string, got %s", n.Line, strings.TrimPrefix(n.ShortTag(), "!!"))
	}
	*s = docString(n.Value)
	return nil
}

// docValue is a one-shot value resolved during decoding. A type error is
// held until build so it can be reported with its document path.
type docValue struct {
	set bool
	val osc.Value
	err error
}

func (d *docValue) UnmarshalYAML(n *yaml.Node) error {
	d.set = true
	d.val, d.err = yamlValue(n)
	return nil
}

func (d *docValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	d.set = true
	d.val, d.err = jsonValue(b)
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report document field names rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes one action-set document. Valid JSON goes through
// encoding/json, anything else through the YAML decoder. In both cases the
// value type of a one-shot entry (boolean, integral number, other number)
// selects its OSC type.
func Parse(doc []byte) (Group, error) {
	if json.Valid(doc) {
		return ParseJSON(doc)
	}
	return ParseYAML(doc)
}

// ParseJSON decodes a JSON action-set document. A number is integral when
// its text has no fraction or exponent.
func ParseJSON(doc []byte) (Group, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()

	var gd groupDoc
	if err := dec.Decode(&gd); err != nil {
		if errors.Is(err, io.EOF) {
			return Group{}, &ConfigError{Msg: "empty document"}
		}
		return Group{}, &ConfigError{Msg: "decode document", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Group{}, &ConfigError{Msg: "unexpected data after document"}
	}

	return gd.build()
}

// ParseYAML decodes a YAML action-set document.
func ParseYAML(doc []byte) (Group, error) {
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)

	var gd groupDoc
	if err := dec.Decode(&gd); err != nil {
		if errors.Is(err, io.EOF) {
			return Group{}, &ConfigError{Msg: "empty document"}
		}
		return Group{}, &ConfigError{Msg: "decode document", Err: err}
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Group{}, &ConfigError{Msg: "unexpected trailing document"}
	}

	return gd.build()
}

// ParseFile reads and parses a single action-set file. ".json" files are
// decoded as JSON, every other extension as YAML.
func ParseFile(path string) (Group, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Group{}, fmt.Errorf("read action set: %w", err)
	}
	parse := ParseYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parse = ParseJSON
	}
	g, err := parse(b)
	if err != nil {
		return Group{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// LoadDir parses every .json, .yaml and .yml file in dir, in file-name order.
// Group ids must be unique across the directory.
func LoadDir(dir string) ([]Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read action set dir: %w", err)
	}

	var groups []Group
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !isDocument(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		g, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[g.ID]; dup {
			return nil, fmt.Errorf("%s: %w", path, &ConfigError{
				Path: "id",
				Msg:  fmt.Sprintf("duplicate group id %q (also in %s)", g.ID, prev),
			})
		}
		seen[g.ID] = path
		groups = append(groups, g)
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("no action sets found in %s", dir)
	}
	return groups, nil
}

func isDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func (d groupDoc) build() (Group, error) {
	if err := checkFields("", d); err != nil {
		return Group{}, err
	}

	g := Group{
		ID:      string(d.ID),
		Name:    string(d.Name),
		Actions: make([]Action, 0, len(d.Actions)),
	}
	seen := make(map[string]int, len(d.Actions))
	for i, ad := range d.Actions {
		path := fmt.Sprintf("actions[%d]", i)
		a, err := ad.build(path)
		if err != nil {
			return Group{}, err
		}
		if j, dup := seen[a.ID]; dup {
			return Group{}, &ConfigError{
				Path: path + ".id",
				Msg:  fmt.Sprintf("duplicate action id %q (also actions[%d])", a.ID, j),
			}
		}
		seen[a.ID] = i
		g.Actions = append(g.Actions, a)
	}
	return g, nil
}

func (d actionDoc) build(path string) (Action, error) {
	if err := checkFields(path, d); err != nil {
		return Action{}, err
	}

	var present []string
	if d.Analog != nil {
		present = append(present, "analog")
	}
	if d.Binary != nil {
		present = append(present, "binary")
	}
	if d.Rotate != nil {
		present = append(present, "rotate")
	}
	switch len(present) {
	case 0:
		return Action{}, &ConfigError{Path: path, Msg: "one of analog, binary or rotate is required"}
	case 1:
	default:
		return Action{}, &ConfigError{
			Path: path,
			Msg:  "only one of analog, binary or rotate may be set, got " + strings.Join(present, ", "),
		}
	}

	a := Action{ID: string(d.ID), Name: string(d.Name)}
	var err error
	switch {
	case d.Analog != nil:
		a.Behavior, err = buildAnalog(path+".analog", *d.Analog)
	case d.Binary != nil:
		a.Behavior, err = buildBinary(path+".binary", *d.Binary)
	case d.Rotate != nil:
		a.Behavior, err = buildRotate(path+".rotate", *d.Rotate)
	}
	if err != nil {
		return Action{}, err
	}
	return a, nil
}

func buildAnalog(path string, docs []rangeDoc) (Analog, error) {
	out := Analog{Mappings: make([]RangeMapping, 0, len(docs))}
	for i, rd := range docs {
		p := fmt.Sprintf("%s[%d]", path, i)
		if err := checkFields(p, rd); err != nil {
			return Analog{}, err
		}
		if !(*rd.InputMin < *rd.InputMax) {
			return Analog{}, &ConfigError{
				Path: p,
				Msg:  fmt.Sprintf("input_min (%g) must be less than input_max (%g)", *rd.InputMin, *rd.InputMax),
			}
		}
		out.Mappings = append(out.Mappings, RangeMapping{
			Key:       string(rd.Key),
			InputMin:  *rd.InputMin,
			InputMax:  *rd.InputMax,
			OutputMin: *rd.OutputMin,
			OutputMax: *rd.OutputMax,
		})
	}
	return out, nil
}

func buildBinary(path string, d binaryDoc) (Binary, error) {
	press, err := buildOneShots(path+".press", d.Press)
	if err != nil {
		return Binary{}, err
	}
	release, err := buildOneShots(path+".release", d.Release)
	if err != nil {
		return Binary{}, err
	}
	return Binary{Press: press, Release: release}, nil
}

func buildRotate(path string, docs []positionDoc) (Rotate, error) {
	if len(docs) == 0 {
		return Rotate{}, &ConfigError{Path: path, Msg: "at least one position is required"}
	}
	out := Rotate{Positions: make([]Position, 0, len(docs))}
	for i, pd := range docs {
		p := fmt.Sprintf("%s[%d]", path, i)
		enter, err := buildOneShots(p+".enter", pd.Enter)
		if err != nil {
			return Rotate{}, err
		}
		exit, err := buildOneShots(p+".exit", pd.Exit)
		if err != nil {
			return Rotate{}, err
		}
		out.Positions = append(out.Positions, Position{Enter: enter, Exit: exit})
	}
	return out, nil
}

func buildOneShots(path string, docs []oneShotDoc) ([]OneShot, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	out := make([]OneShot, 0, len(docs))
	for i, od := range docs {
		p := fmt.Sprintf("%s[%d]", path, i)
		if err := checkFields(p, od); err != nil {
			return nil, err
		}
		switch {
		case !od.Value.set:
			return nil, &ConfigError{Path: p + ".value", Msg: "missing required field"}
		case od.Value.err != nil:
			return nil, &ConfigError{Path: p + ".value", Msg: od.Value.err.Error()}
		}
		out = append(out, OneShot{Key: string(od.Key), Value: od.Value.val})
	}
	return out, nil
}

// yamlValue picks the OSC type from the resolved YAML tag of the node.
func yamlValue(n *yaml.Node) (osc.Value, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return osc.Value{}, errUnsupportedValue
	}

	switch tag := n.ShortTag(); tag {
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return osc.Value{}, fmt.Errorf("decode boolean: %w", err)
		}
		return osc.Bool(b), nil

	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return osc.Value{}, fmt.Errorf("decode integer: %w", err)
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return osc.Value{}, fmt.Errorf("integer %d does not fit in int32", i)
		}
		return osc.Int32(int32(i)), nil

	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return osc.Value{}, fmt.Errorf("decode float: %w", err)
		}
		return osc.Float32(float32(f)), nil

	default:
		return osc.Value{}, fmt.Errorf("unsupported value type %s (want boolean, integer or float)", strings.TrimPrefix(tag, "!!"))
	}
}

var errUnsupportedValue = errors.New("unsupported value type (want boolean, integer or float)")

// jsonValue resolves one JSON value. b is a single, valid JSON value.
func jsonValue(b []byte) (osc.Value, error) {
	switch b[0] {
	case 't':
		return osc.Bool(true), nil
	case 'f':
		return osc.Bool(false), nil
	case '"':
		return osc.Value{}, errors.New("unsupported value type str (want boolean, integer or float)")
	case '[', '{':
		return osc.Value{}, errUnsupportedValue
	}

	text := string(b)
	if strings.ContainsAny(text, ".eE") {
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return osc.Value{}, fmt.Errorf("float %s does not fit in float32", text)
		}
		return osc.Float32(float32(f)), nil
	}
	i, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return osc.Value{}, fmt.Errorf("integer %s does not fit in int32", text)
	}
	return osc.Int32(int32(i)), nil
}

// checkFields runs struct-tag validation and maps the first failure onto a ConfigError.
func checkFields(path string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ConfigError{Path: path, Msg: "validate", Err: err}
	}

	fe := fieldErrs[0]
	p := fe.Field()
	if path != "" {
		p = path + "." + p
	}
	switch fe.Tag() {
	case "required":
		return &ConfigError{Path: p, Msg: "missing required field"}
	case "excludesall":
		return &ConfigError{Path: p, Msg: fmt.Sprintf("must not contain %q", fe.Param())}
	default:
		return &ConfigError{Path: p, Msg: fmt.Sprintf("failed %q check", fe.Tag())}
	}
}
