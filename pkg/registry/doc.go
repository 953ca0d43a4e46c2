// Package registry is the catalog of simulated devices.
//
// Each device contributes an Entry: a constructor, the named setups it can
// start in and the communication interfaces it supports. Setups can also be
// added at runtime from YAML files:
//
//	linkam_t95:
//	  hot:
//	    description: Heated to 80 C, waiting for commands.
//	    initial_state: stopped
//	    initial_data:
//	      temperature: 80.0
//	      serial_command_mode: true
package registry
