// Package traverse implements the memory-graph traversal engine: a
// breadth-first crawl of every local variable in every live frame,
// following pointers, struct fields, and array elements, that produces a
// deduplicated address→chunk map alongside a per-frame variable listing.
package traverse

import (
	"fmt"
	"strings"
	"time"

	"github.com/boz/go-throttle"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/fluoresce/fluoresce/pkg/debugger"
)

// Variable is one (name, address, type) triple reported for a frame.
// Address is nil when the expression is not addressable.
type Variable struct {
	Name    string
	Address *string
	Type    string
}

// Chunk is a traversed datum's type alongside its sanitized value.
// Opaque is set when sanitize could not make sense of the debugger's
// textual rendering — treat Value as garbage, not as absence of data.
type Chunk struct {
	Type   string
	Value  interface{}
	Opaque bool
}

// FrameKey identifies one frame's entry in a Result's Frames map.
type FrameKey struct {
	Level    int
	Function string
}

// AddressKey is the dedup key for a Result's Addresses map: the address
// alone is not enough, since two distinct typed views of the same bytes
// (e.g. a union, or a cast) are both worth recording.
type AddressKey struct {
	Address string // "" stands for "not addressable"
	Type    string
}

// Result is the traversal's output: every live frame's locals, and every
// datum transitively reachable from them.
type Result struct {
	Frames    map[FrameKey][]Variable
	Addresses map[AddressKey]Chunk
}

// Traverser walks the live frame/variable graph of one session via its
// debugger.API.
type Traverser struct {
	api          *debugger.API
	log          *logrus.Entry
	progressEach time.Duration
}

// New builds a Traverser. progressEach throttles how often a progress line
// is logged during a long walk; pass 0 to use a sensible default.
func New(api *debugger.API, log *logrus.Entry, progressEach time.Duration) *Traverser {
	if progressEach <= 0 {
		progressEach = 100 * time.Millisecond
	}
	return &Traverser{api: api, log: log, progressEach: progressEach}
}

// Traverse walks every live frame and everything transitively reachable
// from its locals, producing the frame and address maps of Result.
func (t *Traverser) Traverse() (Result, error) {
	frameNames, err := t.api.Frames()
	if err != nil {
		return Result{}, err
	}

	addresses := map[AddressKey]Chunk{}
	frames := map[FrameKey][]Variable{}

	visited := 0
	driver := throttle.ThrottleFunc(t.progressEach, true, func() {
		t.log.WithField("addresses_visited", visited).Debug("traversal in progress")
	})
	defer driver.Stop()

	for level, fn := range frameNames {
		frameIndex := level
		locals, err := t.api.VariableList(&frameIndex)
		if err != nil {
			return Result{}, err
		}

		frameVars := make([]Variable, 0, len(locals))
		var queue []string
		for _, local := range locals {
			queue = append(queue, local.Name)
		}

		// The seed step visits each local itself before the BFS proper, so
		// every reported local appears in the frame listing even if it is
		// never reached as anyone's child.
		for _, local := range locals {
			info, err := t.api.VariableInfo(local.Name, &frameIndex)
			if err != nil {
				return Result{}, err
			}
			frameVars = append(frameVars, Variable{Name: local.Name, Address: info.Address, Type: info.Type})
		}
		frames[FrameKey{Level: level, Function: fn}] = frameVars

		for len(queue) > 0 {
			expr := queue[0]
			queue = queue[1:]

			info, err := t.api.VariableInfo(expr, &frameIndex)
			if err != nil {
				return Result{}, err
			}

			key := addressKey(info)
			if _, seen := addresses[key]; seen {
				continue
			}
			value, ok := sanitize(info.Value)
			addresses[key] = Chunk{Type: info.Type, Value: value, Opaque: !ok}
			visited++
			driver.Trigger()

			if info.Value == "0x0" {
				continue
			}
			queue = append(queue, childExpressions(expr, info)...)
		}
	}

	return Result{Frames: frames, Addresses: addresses}, nil
}

func addressKey(info debugger.VariableInfo) AddressKey {
	addr := ""
	if info.Address != nil {
		addr = *info.Address
	}
	return AddressKey{Address: addr, Type: info.Type}
}

// childExpressions classifies each of info's children into the expression
// to visit next, skipping char children to avoid expanding a string one
// character at a time. A field reached through a pointer is not named
// itself: it yields the dereferenced parent, (*parent), once per such field.
func childExpressions(parentExpr string, info debugger.VariableInfo) []string {
	children := lo.Filter(info.Children, func(c debugger.ChildRef, _ int) bool {
		return c.Type != "char"
	})

	exprs := make([]string, 0, len(children))
	for _, c := range children {
		switch {
		case strings.HasPrefix(c.Expr, "*"):
			exprs = append(exprs, c.Expr)
		case isAllDigits(c.Expr):
			exprs = append(exprs, fmt.Sprintf("%s[%s]", parentExpr, c.Expr))
		case strings.HasSuffix(info.Type, "*"):
			exprs = append(exprs, fmt.Sprintf("(*%s)", parentExpr))
		default:
			exprs = append(exprs, fmt.Sprintf("(%s.%s)", parentExpr, c.Expr))
		}
	}
	return exprs
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
