// Package builtin provides the string stages available to the relayz CLI by
// identifier, such as "trim", "suffix:!" or "replace:a,b".
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/relayz"
)

// MethodAfter applies a transform to the value returned by the rest of the
// chain instead of to the payload passed into it.
const MethodAfter = "after"

// DefaultTimeout bounds the rest of the chain for a bare "timeout" stage.
const DefaultTimeout = 30 * time.Second

// ErrBadParams is returned when a stage is given parameters it cannot use.
var ErrBadParams = errors.New("bad stage parameters")

// Description documents one builtin stage.
type Description struct {
	Usage   string
	Summary string
	Methods []string
}

// transform is a string stage that rewrites the payload. It runs before the
// rest of the chain by default and after it via MethodAfter.
type transform struct {
	name  string
	apply func(payload string, params []string) (string, error)
}

// Handle implements relayz.Handler.
func (s *transform) Handle(ctx context.Context, payload string, next relayz.Next[string], params ...string) (string, error) {
	result, err := s.apply(payload, params)
	if err != nil {
		return payload, fmt.Errorf("%s: %w", s.name, err)
	}
	return next(ctx, result)
}

// Method implements relayz.Dispatcher.
func (s *transform) Method(name string) (relayz.MethodFunc[string], bool) {
	if name != MethodAfter {
		return nil, false
	}
	return func(ctx context.Context, payload string, next relayz.Next[string], params ...string) (string, error) {
		result, err := next(ctx, payload)
		if err != nil {
			return result, err
		}
		out, err := s.apply(result, params)
		if err != nil {
			return result, fmt.Errorf("%s: %w", s.name, err)
		}
		return out, nil
	}, true
}

// halt ends the chain. It ignores the invocation method.
type halt struct{}

// Invoke implements relayz.Invoker.
func (halt) Invoke(_ context.Context, payload string, _ relayz.Next[string], params ...string) (string, error) {
	if len(params) == 0 {
		return payload, nil
	}
	return strings.Join(params, ","), nil
}

// logStage logs the payload on the way in and the result on the way out.
type logStage struct {
	logger logrus.FieldLogger
}

// Invoke implements relayz.Invoker.
func (s *logStage) Invoke(ctx context.Context, payload string, next relayz.Next[string], params ...string) (string, error) {
	entry := s.logger.WithField("payload", payload)
	if len(params) > 0 {
		entry = entry.WithField("label", strings.Join(params, ","))
	}
	entry.Info("stage in")

	result, err := next(ctx, payload)
	if err != nil {
		entry.WithError(err).Warn("stage out")
		return result, err
	}
	entry.WithField("result", result).Info("stage out")
	return result, nil
}

func joined(params []string) (string, error) {
	if len(params) == 0 {
		return "", fmt.Errorf("%w: want a value", ErrBadParams)
	}
	return strings.Join(params, ","), nil
}

func newTransforms() map[string]*transform {
	return map[string]*transform{
		"trim": {name: "trim", apply: func(s string, params []string) (string, error) {
			if len(params) == 0 {
				return strings.TrimSpace(s), nil
			}
			return strings.Trim(s, strings.Join(params, ",")), nil
		}},
		"upper": {name: "upper", apply: func(s string, _ []string) (string, error) {
			return strings.ToUpper(s), nil
		}},
		"lower": {name: "lower", apply: func(s string, _ []string) (string, error) {
			return strings.ToLower(s), nil
		}},
		"prefix": {name: "prefix", apply: func(s string, params []string) (string, error) {
			prefix, err := joined(params)
			return prefix + s, err
		}},
		"suffix": {name: "suffix", apply: func(s string, params []string) (string, error) {
			suffix, err := joined(params)
			return s + suffix, err
		}},
		"replace": {name: "replace", apply: func(s string, params []string) (string, error) {
			if len(params) != 2 {
				return s, fmt.Errorf("%w: want old,new, got %d values", ErrBadParams, len(params))
			}
			return strings.ReplaceAll(s, params[0], params[1]), nil
		}},
		"truncate": {name: "truncate", apply: func(s string, params []string) (string, error) {
			if len(params) != 1 {
				return s, fmt.Errorf("%w: want a length", ErrBadParams)
			}
			n, err := strconv.Atoi(params[0])
			if err != nil || n < 0 {
				return s, fmt.Errorf("%w: invalid length %q", ErrBadParams, params[0])
			}
			runes := []rune(s)
			if len(runes) <= n {
				return s, nil
			}
			return string(runes[:n]), nil
		}},
	}
}

// Register adds every builtin stage to registry. The log stage writes to
// logger.
func Register(registry *relayz.Registry, logger logrus.FieldLogger) error {
	for name, stage := range newTransforms() {
		if err := registry.Register(name, stage); err != nil {
			return err
		}
	}
	if err := registry.Register("halt", halt{}); err != nil {
		return err
	}
	if err := registry.Register("timeout", relayz.NewTimeout[string]("timeout", DefaultTimeout)); err != nil {
		return err
	}
	return registry.Register("log", &logStage{logger: logger})
}

// Descriptions lists the builtin stages in name order.
func Descriptions() []Description {
	both := []string{relayz.MethodHandle, MethodAfter}
	all := []string{"*"}
	return []Description{
		{Usage: "halt[:value]", Summary: "stop the chain, returning value or the payload", Methods: all},
		{Usage: "log[:label]", Summary: "log the payload and the result of the rest of the chain", Methods: all},
		{Usage: "lower", Summary: "lowercase the payload", Methods: both},
		{Usage: "prefix:<value>", Summary: "prepend value", Methods: both},
		{Usage: "replace:<old>,<new>", Summary: "replace every old with new", Methods: both},
		{Usage: "suffix:<value>", Summary: "append value", Methods: both},
		{Usage: "timeout[:duration]", Summary: "fail if the rest of the chain takes longer than duration (default 30s)", Methods: all},
		{Usage: "trim[:cutset]", Summary: "trim whitespace, or the characters in cutset", Methods: both},
		{Usage: "truncate:<n>", Summary: "keep at most n characters", Methods: both},
		{Usage: "upper", Summary: "uppercase the payload", Methods: both},
	}
}
