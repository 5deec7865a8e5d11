package callback

import (
	"context"

	"pkgbind/internal/value"
)

// Progress reports a multi-stage process through the Process* events.
type Progress struct {
	reg     *Registry
	ctx     context.Context
	running bool
}

// StartProgress announces process with its stages and enters the first
// stage.
func (r *Registry) StartProgress(ctx context.Context, process string, stages []string, help string) *Progress {
	r.Call(ctx, ProcessStart, value.String(process), value.Strings(stages), value.String(help))
	p := &Progress{reg: r, ctx: ctx, running: true}
	if len(stages) > 0 {
		p.NextStage()
	}
	return p
}

func (p *Progress) NextStage() {
	p.reg.Call(p.ctx, ProcessNextStage)
}

// Update reports a percentage; a false answer from the host asks to abort.
func (p *Progress) Update(percent int) bool {
	return p.reg.CallBool(p.ctx, true, ProcessProgress, value.Int(int64(percent)))
}

// Done finishes the process once.
func (p *Progress) Done() {
	if !p.running {
		return
	}
	p.running = false
	p.reg.Call(p.ctx, ProcessDone)
}
