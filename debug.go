package jshost

// StartIfConfigured starts the engine's debug session when the runtime was
// configured with EnableDebugging. Starting twice is harmless.
func (r *Runtime) StartIfConfigured() error {
	if !r.cfg.EnableDebugging {
		return nil
	}
	if r.isClosed() {
		return closedFault("")
	}
	if err := r.engine.StartDebugging(); err != nil {
		return faultFrom("", err)
	}
	r.logger.Info().Msg("debug session started")
	return nil
}

// StopIfConfigured is the stop hook paired with StartIfConfigured. The
// engine keeps its session until it is closed, so this does nothing.
func (r *Runtime) StopIfConfigured() {}
