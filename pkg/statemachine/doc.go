// Package statemachine provides the cycle-driven state machine that sits at
// the heart of every simulated device.
//
// A Machine is configured with a set of named states, an initial state and an
// ordered list of guarded transitions. It does not run on its own: the owner
// calls Process once per simulation cycle with the elapsed simulated time.
//
// # Cycle Semantics
//
// On the first call to Process the machine enters the initial state and calls
// its OnEntry handler with dt = 0. On every later call the transitions that
// leave the current state are evaluated in declaration order. The first
// transition whose condition returns true is taken:
//
//	old.OnExit(dt)
//	current = new
//	new.OnEntry(dt)
//
// If no condition holds, the current state's InState handler is called
// instead. Exactly one of these paths runs per cycle.
//
// # Example
//
//	m, err := statemachine.New(statemachine.Config{
//	    Initial: "idle",
//	    States: map[string]statemachine.State{
//	        "idle":   statemachine.BaseState{},
//	        "moving": &movingState{motor: motor},
//	    },
//	    Transitions: []statemachine.Transition{
//	        {From: "idle", To: "moving", Condition: func() bool { return motor.target != motor.position }},
//	        {From: "moving", To: "idle", Condition: func() bool { return motor.target == motor.position }},
//	    },
//	})
package statemachine
