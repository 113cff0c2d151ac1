// Package debug drives a debug adapter over the Debug Adapter Protocol and
// exposes what a stopped debuggee holds as paged inspect entities.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│                  VariableInspector                        │
//	│  scopes, watches, evaluate -> inspect.Ranged pages        │
//	└──────────────────────────────────────────────────────────┘
//	                           │
//	                           ▼
//	┌──────────────────────────────────────────────────────────┐
//	│                       Session                             │
//	│  state machine, stop epoch, breakpoints, stack            │
//	└──────────────────────────────────────────────────────────┘
//	                           │
//	                           ▼
//	┌──────────────────────────────────────────────────────────┐
//	│             dap.Client  /  adapters.Adapter               │
//	└──────────────────────────────────────────────────────────┘
//
// # Session States
//
//	connected -> configuring -> running <-> stopped -> terminated | disconnected
//
// # Reference validity
//
// Variables references handed out by an adapter are only meaningful until
// the debuggee resumes. The session counts stops in an epoch; every
// VariableEntity remembers the epoch it was created in and reports itself
// invalid once the epoch moves on. Requests made with a stale reference
// fail with ErrStaleReference instead of reaching the adapter.
//
// # Usage
//
//	adapter, _ := adapters.New(adapters.Config{Type: adapters.AdapterDelve, Program: "./cmd/app"})
//	session, err := debug.Connect(ctx, adapter)
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	bps := debug.NewBreakpoints()
//	bp, _ := debug.ParseLocation("main.go:42")
//	bps.Add(bp)
//	if err := session.Start(ctx, adapter, bps); err != nil {
//	    return err
//	}
//	if _, err := session.WaitForStop(ctx); err != nil {
//	    return err
//	}
//
//	frame, _ := session.TopFrame(ctx)
//	inspector := debug.NewVariableInspector(session, nil, nil)
//	root, _ := inspector.FrameEntity(ctx, frame.ID)
//	inspect.Walk(ctx, root, inspect.WalkOptions{MaxDepth: 3}, visit)
package debug
