package project

import "github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"

// resolveLocation picks the settings location of a new terminal: the
// terminal's working directory if it is inside a worktree, otherwise the
// task's cwd, otherwise none (global settings). It only affects settings
// lookup; the working directory is spawned as given.
func (p *Project) resolveLocation(terminalCwd, taskCwd string) *settings.Location {
	for _, candidate := range []string{terminalCwd, taskCwd} {
		if candidate == "" {
			continue
		}
		if wt, rel, ok := p.worktrees.Find(candidate); ok {
			return &settings.Location{WorktreeID: wt.ID, Path: rel}
		}
	}
	return nil
}
