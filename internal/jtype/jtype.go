// Package jtype describes the type kinds of the remote runtime.
//
// A type is identified by its wire signature. The first character decides the
// category: '[' is an array, 'L...;' is a class or interface, and a single
// letter is a primitive (B, S, I, J, F, D, C, Z).
package jtype

import "strings"

// Type is a runtime type descriptor. It is a value type; two descriptors with
// the same signature describe the same type.
type Type struct {
	// Name is the display name, e.g. "int", "String", "int[]".
	Name string `json:"name" yaml:"name"`

	// Signature is the wire signature, e.g. "I", "Ljava/lang/String;", "[I".
	Signature string `json:"signature" yaml:"signature"`

	// Package is the dotted package of class types, empty otherwise.
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
}

// Well known types.
var (
	Byte    = Type{Name: "byte", Signature: "B"}
	Short   = Type{Name: "short", Signature: "S"}
	Int     = Type{Name: "int", Signature: "I"}
	Long    = Type{Name: "long", Signature: "J"}
	Float   = Type{Name: "float", Signature: "F"}
	Double  = Type{Name: "double", Signature: "D"}
	Char    = Type{Name: "char", Signature: "C"}
	Boolean = Type{Name: "boolean", Signature: "Z"}

	// Null types literal null values; it has no real runtime type.
	Null = Type{Name: "null", Signature: "Lnull;"}

	String = Type{Name: "String", Signature: "Ljava/lang/String;", Package: "java.lang"}
	Object = Type{Name: "Object", Signature: "Ljava/lang/Object;", Package: "java.lang"}
)

// IsArray reports whether t is an array type.
func (t Type) IsArray() bool {
	return strings.HasPrefix(t.Signature, "[")
}

// IsObject reports whether t is a class or interface type.
func (t Type) IsObject() bool {
	return strings.HasPrefix(t.Signature, "L")
}

// IsReference reports whether values of t are object references.
func (t Type) IsReference() bool {
	return t.IsArray() || t.IsObject()
}

// IsPrimitive reports whether t is a primitive kind.
func (t Type) IsPrimitive() bool {
	return !t.IsReference()
}

// IsInteger reports whether t is one of the integer kinds usable as an index:
// byte, short, int or long.
func (t Type) IsInteger() bool {
	switch t.Signature {
	case "B", "S", "I", "J":
		return true
	}
	return false
}

// IsString reports whether t is the runtime string class.
func (t Type) IsString() bool {
	return t.Signature == String.Signature
}

// IsRootObject reports whether t is the universal base class.
func (t Type) IsRootObject() bool {
	return t.Signature == Object.Signature
}

// QualifiedName returns the package-qualified display name.
func (t Type) QualifiedName() string {
	if t.Package == "" {
		return t.Name
	}
	return t.Package + "." + t.Name
}

// Bits returns the width of integer kinds, or 0 for other types.
func (t Type) Bits() int {
	switch t.Signature {
	case "B":
		return 8
	case "S":
		return 16
	case "I":
		return 32
	case "J":
		return 64
	}
	return 0
}
