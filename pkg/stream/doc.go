// Package stream implements the line-oriented TCP adapter.
//
// A device describes its command set as an Interface: a list of Commands,
// each a regular expression whose capture groups are converted into handler
// arguments, plus the terminators that delimit requests and replies.
//
//	iface := stream.Interface{
//		Device:       "motor",
//		InTerminator: "\r\n",
//		Commands: []stream.Command{{
//			Name:    "set_target",
//			Pattern: `^T=([-+]?[0-9]*\.?[0-9]+)$`,
//			Args:    []stream.ArgMapping{stream.Float},
//			Handler: func(args ...any) (string, error) { ... },
//		}},
//	}
//
// Requests arrive on per-connection goroutines but are only answered inside
// Adapter.Handle, i.e. on the simulation goroutine.
package stream
