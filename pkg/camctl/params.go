package camctl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/teslashibe/go-daheng/pkg/gxi"
)

// accessor holds the per-kind handling of one feature type: the label
// used in diagnostics, the check or normalisation applied before a write
// and the formatting of a read value.
type accessor struct {
	label   string
	prepare func(f gxi.FeatureInfo, v gxi.Value) (gxi.Value, error)
	format  func(f gxi.FeatureInfo, v gxi.Value) string
}

var accessors = map[gxi.Kind]accessor{
	gxi.KindInt:    {label: "integer", prepare: prepareInt, format: withUnit},
	gxi.KindFloat:  {label: "float", prepare: prepareFloat, format: withUnit},
	gxi.KindEnum:   {label: "enum", prepare: prepareEnum, format: formatEnum},
	gxi.KindBool:   {label: "boolean", prepare: passThrough, format: plainValue},
	gxi.KindString: {label: "string", prepare: passThrough, format: plainValue},
}

func passThrough(_ gxi.FeatureInfo, v gxi.Value) (gxi.Value, error) { return v, nil }

func plainValue(_ gxi.FeatureInfo, v gxi.Value) string { return v.String() }

func withUnit(f gxi.FeatureInfo, v gxi.Value) string {
	if f.Unit == "" {
		return v.String()
	}
	return v.String() + " " + f.Unit
}

func inBounds(f gxi.FeatureInfo, x float64) error {
	if f.Min == 0 && f.Max == 0 {
		return nil
	}
	if x < f.Min || x > f.Max {
		return fmt.Errorf("%w: %g outside [%g, %g]", gxi.ErrOutOfRange, x, f.Min, f.Max)
	}
	return nil
}

func prepareInt(f gxi.FeatureInfo, v gxi.Value) (gxi.Value, error) {
	if err := inBounds(f, float64(v.Int)); err != nil {
		return v, err
	}
	if inc := int64(f.Inc); inc > 1 && (v.Int-int64(f.Min))%inc != 0 {
		return v, fmt.Errorf("%w: %d is not a multiple of %d from %g", gxi.ErrOutOfRange, v.Int, inc, f.Min)
	}
	return v, nil
}

func prepareFloat(f gxi.FeatureInfo, v gxi.Value) (gxi.Value, error) {
	return v, inBounds(f, v.Float)
}

// prepareEnum resolves v to one of the feature's entries. Features that
// do not publish their entries are written as given.
func prepareEnum(f gxi.FeatureInfo, v gxi.Value) (gxi.Value, error) {
	if v.Str == "" && v.Int < 0 {
		return v, fmt.Errorf("enum value needs a symbol or a non-negative entry")
	}
	if len(f.Entries) == 0 {
		return v, nil
	}
	e, ok := f.Entry(v)
	if !ok {
		names := make([]string, len(f.Entries))
		for i, e := range f.Entries {
			names[i] = e.Symbolic
		}
		return v, fmt.Errorf("%w: no entry %s (have %s)", gxi.ErrOutOfRange, v, strings.Join(names, ", "))
	}
	return e.Enum(), nil
}

func formatEnum(f gxi.FeatureInfo, v gxi.Value) string {
	if v.Str == "" {
		if e, ok := f.Entry(v); ok {
			return e.Enum().String()
		}
	}
	return v.String()
}

// Setting is a feature assignment in text form, as found in config files.
type Setting struct {
	Name  string `yaml:"name" json:"name"`
	Type  string `yaml:"type" json:"type"`
	Value string `yaml:"value" json:"value"`
}

// FeatureValue pairs a feature descriptor with its current value.
type FeatureValue struct {
	gxi.FeatureInfo
	Value gxi.Value `json:"-"`
	Error string    `json:"error,omitempty"`
}

// Current returns the value as a plain Go value for JSON output.
func (f FeatureValue) Current() any {
	return f.Value.Interface()
}

// MarshalJSON flattens the descriptor and adds the current value.
func (f FeatureValue) MarshalJSON() ([]byte, error) {
	type plain FeatureValue
	return json.Marshal(struct {
		plain
		Value any `json:"value,omitempty"`
	}{plain(f), f.Current()})
}

// Params reads and writes device features by name and kind. Unsupported
// kinds, missing features and kind mismatches are reported and skipped;
// none of them is an error.
type Params struct {
	dev gxi.Device
	con *Console
}

// NewParams wraps dev.
func NewParams(dev gxi.Device, con *Console) *Params {
	return &Params{dev: dev, con: con}
}

// resolve applies the checks shared by Get and Set.
func (p *Params) resolve(name string, kind gxi.Kind) (accessor, gxi.FeatureInfo, bool) {
	acc, ok := accessors[kind]
	if !ok {
		p.con.Warn(fmt.Sprintf("unsupported parameter type: %s", kind), "feature", name)
		return accessor{}, gxi.FeatureInfo{}, false
	}
	f, ok := p.dev.Lookup(name)
	if !ok || !f.Implemented {
		p.con.Warn(fmt.Sprintf("device does not support %s", name), "feature", name)
		return accessor{}, gxi.FeatureInfo{}, false
	}
	if f.Kind != kind {
		p.con.Warn(fmt.Sprintf("%s is not a %s parameter", name, acc.label),
			"feature", name, "kind", f.Kind, "requested", kind)
		return accessor{}, gxi.FeatureInfo{}, false
	}
	return acc, f, true
}

// Get reads name as kind. ok is false when nothing was read.
func (p *Params) Get(name string, kind gxi.Kind) (v gxi.Value, ok bool) {
	acc, f, ok := p.resolve(name, kind)
	if !ok {
		return gxi.Value{}, false
	}
	v, err := p.dev.Read(name)
	if err != nil {
		p.con.Error(fmt.Sprintf("get %s failed", name), err)
		return gxi.Value{}, false
	}
	if v.Kind != kind {
		p.con.Error(fmt.Sprintf("get %s failed", name),
			fmt.Errorf("%w: device returned %s", gxi.ErrKindMismatch, v.Kind))
		return gxi.Value{}, false
	}
	shown := acc.format(f, v)
	p.con.Info(fmt.Sprintf("get %s succeeded, value %s", name, shown), "feature", name, "value", shown)
	return v, true
}

// Set writes v to name using v's kind. It reports whether the device
// accepted the value.
func (p *Params) Set(name string, v gxi.Value) bool {
	acc, f, ok := p.resolve(name, v.Kind)
	if !ok {
		return false
	}
	v, err := acc.prepare(f, v)
	if err != nil {
		p.con.Error(fmt.Sprintf("set %s to %s failed", name, v), err)
		return false
	}
	if err := p.dev.Write(name, v); err != nil {
		p.con.Error(fmt.Sprintf("set %s to %s failed", name, v), err)
		return false
	}
	p.con.Info(fmt.Sprintf("set %s to %s succeeded", name, v), "feature", name, "value", v.String())
	return true
}

// Apply parses and writes a text setting.
func (p *Params) Apply(s Setting) bool {
	kind, ok := gxi.ParseKind(s.Type)
	if !ok || kind == gxi.KindCommand {
		p.con.Warn(fmt.Sprintf("unsupported parameter type: %s", s.Type), "feature", s.Name)
		return false
	}
	v, err := gxi.ParseValue(kind, s.Value)
	if err != nil {
		p.con.Error(fmt.Sprintf("set %s failed", s.Name), err)
		return false
	}
	return p.Set(s.Name, v)
}

// Snapshot reads every readable feature without reporting each read.
func (p *Params) Snapshot() []FeatureValue {
	features := p.dev.Features()
	out := make([]FeatureValue, 0, len(features))
	for _, f := range features {
		fv := FeatureValue{FeatureInfo: f}
		if f.Implemented && f.Readable && f.Kind != gxi.KindCommand {
			v, err := p.dev.Read(f.Name)
			if err != nil {
				fv.Error = err.Error()
			} else {
				fv.Value = v
			}
		}
		out = append(out, fv)
	}
	return out
}

// Dump prints every feature the device exposes as a table.
func (p *Params) Dump(w io.Writer) error {
	snap := p.Snapshot()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tTYPE\tACCESS\tVALUE")
	for _, f := range snap {
		value := "-"
		acc, known := accessors[f.Kind]
		switch {
		case f.Error != "":
			value = "error: " + f.Error
		case !f.Implemented:
			value = "not implemented"
		case known && f.Value.Kind == f.Kind:
			value = acc.format(f.FeatureInfo, f.Value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.Kind, access(f.FeatureInfo), value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	p.con.Logger().Info("feature table printed", "features", len(snap))
	return nil
}

func access(f gxi.FeatureInfo) string {
	switch {
	case !f.Implemented:
		return "NA"
	case f.Readable && f.Writable:
		return "RW"
	case f.Readable:
		return "RO"
	case f.Writable:
		return "WO"
	}
	return "NA"
}
