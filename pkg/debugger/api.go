// Package debugger implements a small set of typed command wrappers over
// the raw session driver: one function per MI command this system
// actually drives, each validating the result class it expects and
// translating the response body into a plain Go value.
package debugger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fluoresce/fluoresce/pkg/mierr"
	"github.com/fluoresce/fluoresce/pkg/miparser"
	"github.com/fluoresce/fluoresce/pkg/session"
)

// ChildRef is one entry from `-var-list-children`: a child expression, its
// reported type, and how many children it itself has.
type ChildRef struct {
	Expr        string
	Type        string
	NumChildren int
}

// VariableInfo is the result of the variable_info sequence: the
// debugger-reported type, the expression's evaluated textual value, its
// address (nil when not addressable), and the expression's direct children.
type VariableInfo struct {
	Type     string
	Value    string
	Address  *string
	Children []ChildRef
}

// API is a thin typed layer over a session.Session.
type API struct {
	sess *session.Session
	log  *logrus.Entry
}

// New wraps sess.
func New(sess *session.Session, log *logrus.Entry) *API {
	return &API{sess: sess, log: log}
}

// call runs cmd and requires the result class to equal want, surfacing a
// ProtocolMismatch otherwise. The mismatch message carries the result's
// own msg field when present (gdb's own explanation of what went wrong,
// e.g. "No registers." once the inferior has exited) rather than just the
// mismatched class.
func (a *API) call(cmd, want string) (miparser.Value, error) {
	class, value, err := a.sess.RunCommand(cmd)
	if err != nil {
		return miparser.Value{}, err
	}
	if class != want {
		if msg, ferr := fieldString(value, "msg"); ferr == nil {
			return miparser.Value{}, mierr.New(mierr.ProtocolMismatch, "%q: expected class %q, got %q (%s)", cmd, want, class, msg)
		}
		return miparser.Value{}, mierr.New(mierr.ProtocolMismatch, "%q: expected class %q, got %q", cmd, want, class)
	}
	return value, nil
}

func fieldString(v miparser.Value, name string) (string, error) {
	f, ok := v.Field(name)
	if !ok {
		return "", mierr.New(mierr.ProtocolMismatch, "missing field %q", name)
	}
	return f.AsString()
}

// Functions lists every function name known to the debugger's symbol
// table. A binary with no debug symbols yields an empty list rather than
// an error.
func (a *API) Functions() ([]string, error) {
	v, err := a.call("-symbol-info-functions", "done")
	if err != nil {
		return nil, err
	}
	symbols, ok := v.Field("symbols")
	if !ok {
		return nil, nil
	}
	debug, ok := symbols.Field("debug")
	if !ok {
		return nil, nil
	}
	group, ok := debug.Index(0)
	if !ok {
		return nil, nil
	}
	list, ok := group.Field("symbols")
	if !ok {
		return nil, nil
	}

	names := make([]string, 0, len(list.List))
	for _, sym := range list.List {
		name, err := fieldString(sym, "name")
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Breakpoint sets a breakpoint at fn and returns its breakpoint number.
func (a *API) Breakpoint(fn string) (int, error) {
	v, err := a.call(fmt.Sprintf("-break-insert %s", fn), "done")
	if err != nil {
		return 0, err
	}
	bkpt, ok := v.Field("bkpt")
	if !ok {
		return 0, mierr.New(mierr.ProtocolMismatch, "break-insert result has no bkpt field")
	}
	numStr, err := fieldString(bkpt, "number")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(numStr)
	if convErr != nil {
		return 0, mierr.New(mierr.ProtocolMismatch, "bkpt.number %q is not an integer", numStr)
	}
	return n, nil
}

// Run starts the target.
func (a *API) Run() error {
	_, err := a.call("-exec-run", "running")
	return err
}

// Next steps over one source line.
func (a *API) Next() error {
	_, err := a.call("-exec-next", "running")
	return err
}

// Frames lists function names for every live stack frame, in whatever
// order the debugger reports them (level 0 first); Variables and
// VariableInfo's frame index matches this same order.
func (a *API) Frames() ([]string, error) {
	v, err := a.call("-stack-list-frames", "done")
	if err != nil {
		return nil, err
	}
	stack, ok := v.Field("stack")
	if !ok {
		return nil, mierr.New(mierr.ProtocolMismatch, "stack-list-frames result has no stack field")
	}
	names := make([]string, 0, len(stack.List))
	for _, fr := range stack.List {
		name, err := fieldString(fr, "func")
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Variables lists every local's textual value in the given frame (or the
// current frame, if frame is nil).
func (a *API) Variables(frame *int) (map[string]string, error) {
	cmd := "-stack-list-variables --all-values"
	if frame != nil {
		cmd = fmt.Sprintf("-stack-list-variables --thread 1 --frame %d --all-values", *frame)
	}
	v, err := a.call(cmd, "done")
	if err != nil {
		return nil, err
	}
	list, ok := v.Field("variables")
	if !ok {
		return nil, mierr.New(mierr.ProtocolMismatch, "stack-list-variables result has no variables field")
	}
	out := make(map[string]string, len(list.List))
	for _, item := range list.List {
		name, err := fieldString(item, "name")
		if err != nil {
			return nil, err
		}
		value, err := fieldString(item, "value")
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// VariableValue is one entry of -stack-list-variables, in the order the
// debugger reported it — unlike Variables, which collapses the same
// response into a map and so loses that order.
type VariableValue struct {
	Name  string
	Value string
}

// VariableList is Variables without the ordering loss a map would cause,
// for the traversal engine's breadth-first walk, which seeds its queue in
// the order locals are reported.
func (a *API) VariableList(frame *int) ([]VariableValue, error) {
	cmd := "-stack-list-variables --all-values"
	if frame != nil {
		cmd = fmt.Sprintf("-stack-list-variables --thread 1 --frame %d --all-values", *frame)
	}
	v, err := a.call(cmd, "done")
	if err != nil {
		return nil, err
	}
	list, ok := v.Field("variables")
	if !ok {
		return nil, mierr.New(mierr.ProtocolMismatch, "stack-list-variables result has no variables field")
	}
	out := make([]VariableValue, 0, len(list.List))
	for _, item := range list.List {
		name, err := fieldString(item, "name")
		if err != nil {
			return nil, err
		}
		value, err := fieldString(item, "value")
		if err != nil {
			return nil, err
		}
		out = append(out, VariableValue{Name: name, Value: value})
	}
	return out, nil
}

// firstToken splits GDB's "<value> <annotation...>" rendering at the first
// space, the way gdb reports pointer values as e.g. `0x601030 <target>`.
func firstToken(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// VariableInfo runs the named-lease sequence: select the frame, create a
// transient variable object, read its type and children, delete it, then
// separately evaluate the expression and its address. The whole sequence
// runs under a single session.WithExclusive lease so no other run_command
// can interleave and steal the VARI name out from under it — the lease is
// a session-wide resource, not just a command-type one. The lease is
// released on every exit path, including an error partway through.
// Result classes on -var-list-children and the evaluate steps are read
// as-is rather than asserted, so a quirky debugger response degrades to a
// best-effort answer instead of aborting the whole traversal.
func (a *API) VariableInfo(expr string, frame *int) (VariableInfo, error) {
	frameArg := 0
	if frame != nil {
		frameArg = *frame
	}

	var result VariableInfo
	err := a.sess.WithExclusive(func(run func(string) (string, miparser.Value, error)) error {
		exec := func(cmd, want string) (miparser.Value, error) {
			class, value, err := run(cmd)
			if err != nil {
				return miparser.Value{}, err
			}
			if class != want {
				return miparser.Value{}, mierr.New(mierr.ProtocolMismatch, "%q: expected class %q, got %q", cmd, want, class)
			}
			return value, nil
		}

		if _, err := exec(fmt.Sprintf("-stack-select-frame %d", frameArg), "done"); err != nil {
			return err
		}

		if _, err := exec(fmt.Sprintf("-var-create VARI * %s", expr), "done"); err != nil {
			return err
		}
		released := false
		release := func() {
			if released {
				return
			}
			released = true
			if _, _, err := run("-var-delete VARI"); err != nil {
				a.log.WithError(err).Warn("releasing VARI lease")
			}
		}
		defer release()

		typeValue, err := exec("-var-info-type VARI", "done")
		if err != nil {
			return err
		}
		typ, err := fieldString(typeValue, "type")
		if err != nil {
			return err
		}

		_, childrenValue, err := run("-var-list-children VARI")
		if err != nil {
			return err
		}
		var children []ChildRef
		if numchild, _ := fieldString(childrenValue, "numchild"); numchild != "0" {
			if list, ok := childrenValue.Field("children"); ok {
				for _, c := range list.List {
					exp, _ := fieldString(c, "exp")
					ctype, _ := fieldString(c, "type")
					numStr, _ := fieldString(c, "numchild")
					num, _ := strconv.Atoi(numStr)
					children = append(children, ChildRef{Expr: exp, Type: ctype, NumChildren: num})
				}
			}
		}
		release()

		value := ""
		if class, v, err := run(fmt.Sprintf("-data-evaluate-expression %s", expr)); err == nil && class == "done" {
			if s, ferr := fieldString(v, "value"); ferr == nil {
				value = s
			}
		}
		if strings.HasPrefix(value, "0x") {
			value = firstToken(value)
		}

		var address *string
		if class, v, err := run(fmt.Sprintf("-data-evaluate-expression &%s", expr)); err == nil && class == "done" {
			if s, ferr := fieldString(v, "value"); ferr == nil {
				tok := firstToken(s)
				address = &tok
			}
		}

		if _, err := exec("-stack-select-frame 0", "done"); err != nil {
			return err
		}

		result = VariableInfo{Type: typ, Value: value, Address: address, Children: children}
		return nil
	})
	if err != nil {
		return VariableInfo{}, err
	}
	return result, nil
}
