package relayz

import (
	"strings"
)

// Name identifies a stage or pipeline in errors, spans and events.
type Name = string

type pipeKind uint8

const (
	kindFunc pipeKind = iota + 1
	kindObject
	kindRef
)

func (k pipeKind) String() string {
	switch k {
	case kindFunc:
		return "func"
	case kindObject:
		return "object"
	case kindRef:
		return "ref"
	default:
		return "invalid"
	}
}

// Pipe describes one stage of a pipeline. It is a closed set of variants,
// each with its own constructor:
//
//   - Func wraps an inline StageFunc.
//   - Object wraps an already built stage object.
//   - Ref names a stage to be looked up through the pipeline's Locator,
//     optionally carrying parameters: "name:param1,param2".
//
// The zero Pipe is invalid and fails resolution.
type Pipe[T any] struct {
	fn     StageFunc[T]
	object any
	name   Name
	ref    string
	params []string
	kind   pipeKind
}

// Func creates a Pipe from an inline function.
//
//	audit := relayz.Func("audit", func(ctx context.Context, o Order, next relayz.Next[Order]) (Order, error) {
//	    log.Printf("order %s entering", o.ID)
//	    return next(ctx, o)
//	})
func Func[T any](name Name, fn StageFunc[T]) Pipe[T] {
	return Pipe[T]{kind: kindFunc, name: name, fn: fn}
}

// Object creates a Pipe from a stage object. The object must implement
// Invoker, Handler or Dispatcher for T, or be a StageFunc or MethodFunc;
// anything else fails when the chain reaches it.
func Object[T any](name Name, object any) Pipe[T] {
	return Pipe[T]{kind: kindObject, name: name, object: object}
}

// Ref creates a Pipe from a string identifier of the form
// "name[:param1,param2,...]". The name is resolved through the pipeline's
// Locator when the chain reaches the stage, and the parameters are appended
// to the stage invocation.
func Ref[T any](identifier string) Pipe[T] {
	name, params := ParseRef(identifier)
	return Pipe[T]{kind: kindRef, name: name, ref: identifier, params: params}
}

// Refs creates one Ref per identifier, preserving order.
func Refs[T any](identifiers ...string) []Pipe[T] {
	pipes := make([]Pipe[T], len(identifiers))
	for i, id := range identifiers {
		pipes[i] = Ref[T](id)
	}
	return pipes
}

// Name returns the stage name. For a Ref this is the identifier without its
// parameters.
func (p Pipe[T]) Name() Name {
	return p.name
}

// Params returns a copy of the parameters parsed from a Ref identifier.
// Func and Object pipes have none.
func (p Pipe[T]) Params() []string {
	if len(p.params) == 0 {
		return nil
	}
	params := make([]string, len(p.params))
	copy(params, p.params)
	return params
}

// String returns the identifier a Ref was built from, or the stage name.
func (p Pipe[T]) String() string {
	if p.kind == kindRef {
		return p.ref
	}
	return p.name
}

// ParseRef splits a stage identifier into its name and parameters. The name
// ends at the first colon; the remainder is split on commas with order kept.
// Without a colon the parameter list is empty. A trailing colon yields a single
// empty parameter.
//
//	ParseRef("throttle:10,burst") // "throttle", ["10", "burst"]
//	ParseRef("trim")              // "trim", []
func ParseRef(identifier string) (string, []string) {
	name, rest, found := strings.Cut(identifier, ":")
	if !found {
		return name, []string{}
	}
	return name, strings.Split(rest, ",")
}
