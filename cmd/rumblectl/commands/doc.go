// Package commands defines the rumblectl CLI for driving a running
// rumbled daemon over its HTTP API.
//
// Commands
//
//   - status    Show axis positions and limits
//   - incr      Nudge an axis by steps or a calibrated delta
//   - goto      Move an axis to an absolute target
//   - home      Seek an axis home switch
//   - preset    Move the polarization axis to a named angle
//   - cal       Set or fit axis calibration
//   - limits    Set or clear axis travel limits
//   - moves     List recorded moves
//   - save      Persist current calibration and limits to the configs
//   - report    Fetch the HTML motion report
//   - migrate   Manage the database schema directly
//   - version   Print build identification
//
// # Implementation
//
// The root command wires a shared HTTP client before any subcommand
// runs. migrate is the exception: it opens the SQLite file directly so
// schema repairs work while the daemon is down.
package commands
