package gxi

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the value type of a feature.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindEnum
	KindBool
	KindString
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindCommand:
		return "command"
	default:
		return "invalid"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown feature kind %q", string(b))
	}
	*k = parsed
	return nil
}

// ParseKind accepts short names ("int") and the "int_value" spelling.
func ParseKind(s string) (Kind, bool) {
	switch strings.TrimSuffix(strings.ToLower(s), "_value") {
	case "int", "integer":
		return KindInt, true
	case "float", "double":
		return KindFloat, true
	case "enum":
		return KindEnum, true
	case "bool", "boolean":
		return KindBool, true
	case "string", "str":
		return KindString, true
	case "command", "cmd":
		return KindCommand, true
	}
	return KindInvalid, false
}

// Value holds one feature value. Kind selects which field is meaningful:
// Int for KindInt, Float for KindFloat, Bool for KindBool, Str for
// KindString. Enum values carry both the numeric entry (Int) and its
// symbolic name (Str); either may be used when writing.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

func IntValue(v int64) Value     { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func BoolValue(v bool) Value     { return Value{Kind: KindBool, Bool: v} }
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// EnumValue builds an enum value. Pass symbolic "" when only the number is known.
func EnumValue(v int64, symbolic string) Value {
	return Value{Kind: KindEnum, Int: v, Str: symbolic}
}

// EnumSymbol builds an enum value from its symbolic name alone.
func EnumSymbol(symbolic string) Value {
	return Value{Kind: KindEnum, Int: -1, Str: symbolic}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindEnum:
		switch {
		case v.Str != "" && v.Int < 0:
			return v.Str
		case v.Str != "":
			return fmt.Sprintf("%d (%s)", v.Int, v.Str)
		}
		return strconv.FormatInt(v.Int, 10)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return v.Str
	default:
		return "<none>"
	}
}

// Interface returns the payload as a plain Go value for JSON output.
func (v Value) Interface() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindEnum:
		if v.Str != "" {
			return v.Str
		}
		return v.Int
	case KindBool:
		return v.Bool
	case KindString:
		return v.Str
	default:
		return nil
	}
}

// ParseValue converts text into a value of kind k.
func ParseValue(k Kind, s string) (Value, error) {
	switch k {
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse int %q: %w", s, err)
		}
		return IntValue(n), nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse float %q: %w", s, err)
		}
		return FloatValue(f), nil
	case KindEnum:
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return EnumValue(n, ""), nil
		}
		return EnumSymbol(strings.TrimSpace(s)), nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", s, err)
		}
		return BoolValue(b), nil
	case KindString:
		return StringValue(s), nil
	default:
		return Value{}, fmt.Errorf("cannot parse value of kind %s", k)
	}
}

// EnumEntry is one selectable entry of an enum feature.
type EnumEntry struct {
	Value    int64  `json:"value"`
	Symbolic string `json:"symbolic"`
}

// FeatureInfo describes a feature exposed by a device.
type FeatureInfo struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Implemented bool   `json:"implemented"`
	Readable    bool   `json:"readable"`
	Writable    bool   `json:"writable"`

	// Min, Max and Inc bound numeric features. Zero Inc means unconstrained.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
	Inc float64 `json:"inc,omitempty"`
	// Unit is informational, e.g. "us" for ExposureTime.
	Unit string `json:"unit,omitempty"`

	Entries []EnumEntry `json:"entries,omitempty"`
}

// Entry resolves an enum value against the feature's entries, matching
// by symbolic name first and then by number.
func (f FeatureInfo) Entry(v Value) (EnumEntry, bool) {
	if v.Str != "" {
		for _, e := range f.Entries {
			if strings.EqualFold(e.Symbolic, v.Str) {
				return e, true
			}
		}
		return EnumEntry{}, false
	}
	for _, e := range f.Entries {
		if e.Value == v.Int {
			return e, true
		}
	}
	return EnumEntry{}, false
}

// Well-known feature names.
const (
	FeatureDeviceVendorName     = "DeviceVendorName"
	FeatureDeviceModelName      = "DeviceModelName"
	FeatureDeviceSerialNumber   = "DeviceSerialNumber"
	FeatureDeviceVersion        = "DeviceVersion"
	FeatureDeviceUserID         = "DeviceUserID"
	FeatureWidth                = "Width"
	FeatureHeight               = "Height"
	FeatureOffsetX              = "OffsetX"
	FeatureOffsetY              = "OffsetY"
	FeaturePayloadSize          = "PayloadSize"
	FeaturePixelFormat          = "PixelFormat"
	FeaturePixelColorFilter     = "PixelColorFilter"
	FeatureReverseX             = "ReverseX"
	FeatureReverseY             = "ReverseY"
	FeatureAcquisitionMode      = "AcquisitionMode"
	FeatureAcquisitionFrameRate = "AcquisitionFrameRate"
	FeatureTriggerMode          = "TriggerMode"
	FeatureTriggerSource        = "TriggerSource"
	FeatureTriggerActivation    = "TriggerActivation"
	FeatureTriggerSoftware      = "TriggerSoftware"
	FeatureExposureTime         = "ExposureTime"
	FeatureExposureAuto         = "ExposureAuto"
	FeatureGain                 = "Gain"
	FeatureGainAuto             = "GainAuto"
	FeatureBalanceWhiteAuto     = "BalanceWhiteAuto"
	FeatureGammaEnable          = "GammaEnable"
	FeatureChunkModeActive      = "ChunkModeActive"
)

// Enum entries shared by the SDK's switch, trigger-source and auto features.
var (
	SwitchOff = EnumEntry{Value: 0, Symbolic: "Off"}
	SwitchOn  = EnumEntry{Value: 1, Symbolic: "On"}

	TriggerSourceSoftware = EnumEntry{Value: 0, Symbolic: "Software"}
	TriggerSourceLine0    = EnumEntry{Value: 1, Symbolic: "Line0"}
	TriggerSourceLine1    = EnumEntry{Value: 2, Symbolic: "Line1"}
	TriggerSourceLine2    = EnumEntry{Value: 3, Symbolic: "Line2"}
	TriggerSourceLine3    = EnumEntry{Value: 4, Symbolic: "Line3"}

	AutoOff        = EnumEntry{Value: 0, Symbolic: "Off"}
	AutoContinuous = EnumEntry{Value: 1, Symbolic: "Continuous"}
	AutoOnce       = EnumEntry{Value: 2, Symbolic: "Once"}

	AcquisitionSingleFrame = EnumEntry{Value: 0, Symbolic: "SingleFrame"}
	AcquisitionMultiFrame  = EnumEntry{Value: 1, Symbolic: "MultiFrame"}
	AcquisitionContinuous  = EnumEntry{Value: 2, Symbolic: "Continuous"}
)

// Enum returns the entry as an enum Value.
func (e EnumEntry) Enum() Value {
	return EnumValue(e.Value, e.Symbolic)
}
