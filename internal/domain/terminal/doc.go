// Package terminal implements terminal sessions over a pseudo-terminal.
//
// A Terminal pumps output from its Pty into a line-bounded History and the
// Display it renders into. Two Pty implementations exist:
//   - local: a child process started with creack/pty (SpawnLocal)
//   - remote: input forwarded to a remote host through an ordered loop, and
//     output read from a channel fed by the registry (NewRemotePty)
//
// Terminals are owned through reference counted Handles. When the last
// Handle is released, release observers run once and the Terminal closes.
//
// Example:
//
//	spec := terminal.BuildSpec(terminal.BuildInput{Settings: s, WorkingDirectory: dir})
//	tx, rx := task.NewCompletion()
//	spec.Completion = rx
//	term, err := terminal.SpawnLocal(spec, tx, terminal.Options{Cols: 80, Rows: 24})
//	h := terminal.NewHandle(term)
//	defer h.Release()
package terminal
