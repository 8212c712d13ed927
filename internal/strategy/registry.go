package strategy

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownStrategy is returned for an unregistered strategy name
var ErrUnknownStrategy = errors.New("unknown strategy")

var constructors = map[string]func(Params) Strategy{
	NameMomentumReversal: func(p Params) Strategy { return NewMomentumReversalStrategy(p) },
	NameMACross:          func(p Params) Strategy { return NewMACrossStrategy(p) },
}

// New builds the named strategy
func New(name string, params Params) (Strategy, error) {
	build, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	if err := params.Indicators.Validate(); err != nil {
		return nil, fmt.Errorf("invalid indicator params: %w", err)
	}
	if params.Oversold <= 0 || params.Overbought >= 100 || params.Oversold >= params.Overbought {
		return nil, fmt.Errorf("oversold must be below overbought within (0,100)")
	}
	return build(params), nil
}

// Names lists the registered strategy names
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name is a known strategy
func IsRegistered(name string) bool {
	_, ok := constructors[name]
	return ok
}
