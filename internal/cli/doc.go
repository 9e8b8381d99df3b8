// Package cli implements the barca-ics command line.
//
// The root command loads the configuration and sets up logging; the
// subcommands are generate (one-shot refresh into a file), serve (HTTP feed
// plus scheduled refresh), inspect (list the events of an .ics file) and
// config (print or save the effective settings). Exit codes: 0 on success,
// including a run that found no fixtures; 1 on any error; 2 when --strict is
// set and the fixtures page could not be fetched.
package cli
