package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/varpager/internal/integration/debug/adapters"
	"github.com/dshills/varpager/internal/integration/debug/dap"
	"github.com/dshills/varpager/internal/integration/debug/dap/daptest"
)

const (
	frameID   = 10
	localsRef = 1000
	sliceRef  = 2000
	structRef = 3000
)

// debuggee is an in-memory adapter stopped in a program with three locals:
// a slice xs of sliceLen ints reported with indexed counts, a struct m
// without reported counts that honors the count argument, and an int n.
type debuggee struct {
	*daptest.Adapter
	sliceLen int
	fields   []string

	// ignorePaging makes the slice answer with every element regardless of
	// start and count.
	ignorePaging bool
}

func newDebuggee(sliceLen int) *debuggee {
	d := &debuggee{
		Adapter:  daptest.New(),
		sliceLen: sliceLen,
		fields:   []string{"A", "B", "C", "D"},
	}

	d.Handle("initialize", func(json.RawMessage) (any, error) {
		return dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsSetVariable:              true,
			SupportsEvaluateForHovers:        true,
		}, nil
	})
	d.Handle("launch", func(json.RawMessage) (any, error) {
		d.Emit("initialized", nil)
		return nil, nil
	})
	d.Handle("setBreakpoints", d.setBreakpoints)
	d.Handle("configurationDone", func(json.RawMessage) (any, error) {
		d.Emit("stopped", dap.StoppedEventBody{Reason: "breakpoint", ThreadID: 1, AllThreadsStopped: true})
		return nil, nil
	})
	d.Handle("threads", func(json.RawMessage) (any, error) {
		return dap.ThreadsResponseBody{Threads: []dap.Thread{{ID: 1, Name: "main"}}}, nil
	})
	d.Handle("stackTrace", func(json.RawMessage) (any, error) {
		return dap.StackTraceResponseBody{
			StackFrames: []dap.StackFrame{
				{ID: frameID, Name: "main.main", Source: &dap.Source{Name: "main.go", Path: "/src/main.go"}, Line: 42},
				{ID: frameID + 1, Name: "runtime.main", Line: 250},
			},
			TotalFrames: 2,
		}, nil
	})
	d.Handle("scopes", func(json.RawMessage) (any, error) {
		return dap.ScopesResponseBody{Scopes: []dap.Scope{
			{Name: "Locals", PresentationHint: "locals", VariablesReference: localsRef},
		}}, nil
	})
	d.Handle("variables", d.variables)
	d.Handle("evaluate", d.evaluate)
	d.Handle("setVariable", func(raw json.RawMessage) (any, error) {
		args, err := daptest.Args[dap.SetVariableArguments](raw)
		if err != nil {
			return nil, err
		}
		return dap.SetVariableResponseBody{Value: args.Value, Type: "int"}, nil
	})

	return d
}

func (d *debuggee) setBreakpoints(raw json.RawMessage) (any, error) {
	args, err := daptest.Args[dap.SetBreakpointsArguments](raw)
	if err != nil {
		return nil, err
	}

	bps := make([]dap.Breakpoint, len(args.Breakpoints))
	for i, b := range args.Breakpoints {
		bps[i] = dap.Breakpoint{ID: i + 1, Verified: b.Line < 100, Line: b.Line}
		if !bps[i].Verified {
			bps[i].Message = "no code at line"
		}
	}
	return dap.SetBreakpointsResponseBody{Breakpoints: bps}, nil
}

func (d *debuggee) variables(raw json.RawMessage) (any, error) {
	args, err := daptest.Args[dap.VariablesArguments](raw)
	if err != nil {
		return nil, err
	}

	var vars []dap.Variable
	switch args.VariablesReference {
	case localsRef:
		vars = []dap.Variable{
			{Name: "xs", Value: fmt.Sprintf("[]int len: %d", d.sliceLen), Type: "[]int", VariablesReference: sliceRef, IndexedVariables: d.sliceLen},
			{Name: "m", Value: "main.T {...}", Type: "main.T", VariablesReference: structRef},
			{Name: "n", Value: "5", Type: "int", EvaluateName: "n"},
		}
	case sliceRef:
		start, end := 0, d.sliceLen
		if args.Filter == dap.FilterIndexed && args.Count > 0 && !d.ignorePaging {
			start = args.Start
			end = min(start+args.Count, d.sliceLen)
		}
		for i := start; i < end; i++ {
			vars = append(vars, dap.Variable{Name: fmt.Sprintf("[%d]", i), Value: strconv.Itoa(i), Type: "int"})
		}
	case structRef:
		fields := d.fields
		if args.Count > 0 && args.Count < len(fields) {
			fields = fields[:args.Count]
		}
		for _, f := range fields {
			vars = append(vars, dap.Variable{Name: f, Value: strings.ToLower(f), Type: "string"})
		}
	default:
		return nil, fmt.Errorf("unknown variables reference %d", args.VariablesReference)
	}
	return dap.VariablesResponseBody{Variables: vars}, nil
}

func (d *debuggee) evaluate(raw json.RawMessage) (any, error) {
	args, err := daptest.Args[dap.EvaluateArguments](raw)
	if err != nil {
		return nil, err
	}

	switch args.Expression {
	case "xs":
		return dap.EvaluateResponseBody{
			Result:             fmt.Sprintf("[]int len: %d", d.sliceLen),
			Type:               "[]int",
			VariablesReference: sliceRef,
			IndexedVariables:   d.sliceLen,
		}, nil
	case "n":
		return dap.EvaluateResponseBody{Result: "5", Type: "int"}, nil
	default:
		return nil, fmt.Errorf("could not find symbol value for %s", args.Expression)
	}
}

// variablesRequests returns the variables requests sent for ref.
func (d *debuggee) variablesRequests(t *testing.T, ref int) []dap.VariablesArguments {
	t.Helper()

	var result []dap.VariablesArguments
	for _, req := range d.Requests() {
		if req.Command != "variables" {
			continue
		}
		args, err := daptest.Args[dap.VariablesArguments](req.Arguments)
		require.NoError(t, err)
		if args.VariablesReference == ref {
			result = append(result, args)
		}
	}
	return result
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// startSession runs the startup sequence against d and waits for the first
// stop.
func startSession(t *testing.T, d *debuggee, bps *Breakpoints) *Session {
	t.Helper()

	s := NewSession(dap.NewClient(d.Adapter))
	t.Cleanup(func() { _ = s.Close() })

	ctx := testContext(t)
	adapter, err := adapters.New(adapters.Config{Type: adapters.AdapterDelve, Program: "./cmd/app"})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx, adapter, bps))

	_, err = s.WaitForStop(ctx)
	require.NoError(t, err)
	return s
}
